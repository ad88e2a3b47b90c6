package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dev-tams/cachesweep/internal/storage/prunable"
)

const defaultRegion = "us-east-1"

type Storage struct {
	bucket string
	region string
	client *s3.Client
}

type Options struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint, e.g. http://localhost:9000 for MinIO.
	Endpoint     string
	UsePathStyle bool
	// AccessKey and SecretKey are optional; the default credential chain is used when both are empty.
	AccessKey string
	SecretKey string
}

func New(ctx context.Context, opt Options) (*Storage, error) {
	if opt.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	if opt.Region == "" {
		opt.Region = defaultRegion
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opt.Region),
	}
	if opt.AccessKey != "" && opt.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opt.AccessKey, opt.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opt.Endpoint != "" {
			o.BaseEndpoint = aws.String(opt.Endpoint)
		}
		o.UsePathStyle = opt.UsePathStyle
		o.DisableLogOutputChecksumValidationSkipped = true
	})

	return &Storage{
		bucket: opt.Bucket,
		region: opt.Region,
		client: client,
	}, nil
}

func (s *Storage) Name() string {
	return s.bucket
}

func (s *Storage) Ping(ctx context.Context) error {
	_, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{MaxBuckets: aws.Int32(1)})
	if err != nil {
		return wrapError("Ping", "", err)
	}
	return nil
}

func (s *Storage) ContainerExists(ctx context.Context) (bool, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		wrapped := wrapError("HeadBucket", s.bucket, err)
		if errors.Is(wrapped, prunable.ErrNotFound) || errors.Is(wrapped, prunable.ErrContainerNotFound) {
			return false, nil
		}
		return false, wrapped
	}
	return true, nil
}

func (s *Storage) CreateContainerIfNotExists(ctx context.Context) (bool, error) {
	in := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != defaultRegion {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}

	_, err := s.client.CreateBucket(ctx, in)
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return false, nil
		}
		return false, wrapError("CreateBucket", s.bucket, err)
	}
	return true, nil
}

func (s *Storage) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return wrapError("Put", key, err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapError("Get", key, err)
	}
	return out.Body, nil
}

func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		wrapped := wrapError("Head", key, err)
		if errors.Is(wrapped, prunable.ErrNotFound) {
			return false, nil
		}
		return false, wrapped
	}
	return true, nil
}

func (s *Storage) List(ctx context.Context, prefix string) iter.Seq2[prunable.ObjectInfo, error] {
	return func(yield func(prunable.ObjectInfo, error) bool) {
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(prefix),
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(prunable.ObjectInfo{}, wrapError("List", prefix, err))
				return
			}
			for _, obj := range page.Contents {
				info := prunable.ObjectInfo{
					Key:  aws.ToString(obj.Key),
					Size: aws.ToInt64(obj.Size),
				}
				if obj.LastModified != nil {
					info.ModTime = *obj.LastModified
				}
				if !yield(info, nil) {
					return
				}
			}
		}
	}
}

// DeleteIfExists removes every version of key. On buckets without
// versioning the single "null" version is removed. Stores that do not
// implement ListObjectVersions fall back to a plain delete.
func (s *Storage) DeleteIfExists(ctx context.Context, key string) (bool, error) {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	versions, err := s.versionIDs(ctx, key)
	if err != nil {
		var apiErr smithy.APIError
		if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "NotImplemented" {
			return false, err
		}
		versions = nil
	}

	if len(versions) == 0 {
		if err := s.deleteVersion(ctx, key, nil); err != nil {
			return false, err
		}
		return true, nil
	}

	for _, v := range versions {
		if err := s.deleteVersion(ctx, key, v); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Storage) deleteVersion(ctx context.Context, key string, versionID *string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:    aws.String(s.bucket),
		Key:       aws.String(key),
		VersionId: versionID,
	})
	if err != nil {
		wrapped := wrapError("Delete", key, err)
		if errors.Is(wrapped, prunable.ErrNotFound) {
			return nil
		}
		return wrapped
	}
	return nil
}

func (s *Storage) versionIDs(ctx context.Context, key string) ([]*string, error) {
	var ids []*string
	in := &s3.ListObjectVersionsInput{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(key),
	}

	for {
		out, err := s.client.ListObjectVersions(ctx, in)
		if err != nil {
			return nil, err
		}
		for _, v := range out.Versions {
			if aws.ToString(v.Key) == key {
				ids = append(ids, v.VersionId)
			}
		}
		for _, m := range out.DeleteMarkers {
			if aws.ToString(m.Key) == key {
				ids = append(ids, m.VersionId)
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			return ids, nil
		}
		in.KeyMarker = out.NextKeyMarker
		in.VersionIdMarker = out.NextVersionIdMarker
	}
}

func wrapError(op, key string, err error) error {
	if err == nil {
		return nil
	}

	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return &prunable.ObjectError{Op: op, Key: key, Err: prunable.ErrContainerNotFound}
	}

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return &prunable.ObjectError{Op: op, Key: key, Err: prunable.ErrNotFound}
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return &prunable.ObjectError{Op: op, Key: key, Err: prunable.ErrNotFound}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return &prunable.ObjectError{Op: op, Key: key, Err: prunable.ErrNotFound}
		case http.StatusForbidden:
			return &prunable.ObjectError{Op: op, Key: key, Err: prunable.ErrAccessDenied}
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &prunable.ObjectError{Op: op, Key: key, Err: fmt.Errorf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())}
	}

	return &prunable.ObjectError{Op: op, Key: key, Err: err}
}
