// Package azstore implements the storage capabilities on top of an Azure Blob Storage container.
package azstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"

	"github.com/dev-tams/cachesweep/internal/storage/prunable"
)

type Storage struct {
	name      string
	service   *service.Client
	container *container.Client
}

// New builds a container handle from an account connection string. No
// request is made until the first operation.
func New(connectionString, containerName string) (*Storage, error) {
	if containerName == "" {
		return nil, fmt.Errorf("azblob: container name is required")
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("azblob: parse connection string: %w", err)
	}

	svc := client.ServiceClient()
	return &Storage{
		name:      containerName,
		service:   svc,
		container: svc.NewContainerClient(containerName),
	}, nil
}

func (s *Storage) Name() string { return s.name }

func (s *Storage) Ping(ctx context.Context) error {
	if _, err := s.service.GetProperties(ctx, nil); err != nil {
		return wrapError("Ping", "", err)
	}
	return nil
}

func (s *Storage) ContainerExists(ctx context.Context) (bool, error) {
	_, err := s.container.GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.ContainerNotFound) {
			return false, nil
		}
		return false, wrapError("ContainerExists", s.name, err)
	}
	return true, nil
}

func (s *Storage) CreateContainerIfNotExists(ctx context.Context) (bool, error) {
	_, err := s.container.Create(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return false, nil
		}
		return false, wrapError("CreateContainer", s.name, err)
	}
	return true, nil
}

func (s *Storage) Put(ctx context.Context, key string, body io.Reader, _ int64) error {
	if _, err := s.container.NewBlockBlobClient(key).UploadStream(ctx, body, nil); err != nil {
		return wrapError("Put", key, err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.container.NewBlobClient(key).DownloadStream(ctx, nil)
	if err != nil {
		return nil, wrapError("Get", key, err)
	}
	return resp.Body, nil
}

func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.container.NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, wrapError("Exists", key, err)
	}
	return true, nil
}

func (s *Storage) List(ctx context.Context, prefix string) iter.Seq2[prunable.ObjectInfo, error] {
	return func(yield func(prunable.ObjectInfo, error) bool) {
		pager := s.container.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
			Prefix: to.Ptr(prefix),
		})

		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield(prunable.ObjectInfo{}, wrapError("List", prefix, err))
				return
			}
			if page.Segment == nil {
				continue
			}
			for _, item := range page.Segment.BlobItems {
				if item == nil || item.Name == nil {
					continue
				}
				info := prunable.ObjectInfo{Key: *item.Name}
				if p := item.Properties; p != nil {
					if p.LastModified != nil {
						info.ModTime = *p.LastModified
					}
					if p.ContentLength != nil {
						info.Size = *p.ContentLength
					}
				}
				if !yield(info, nil) {
					return
				}
			}
		}
	}
}

// DeleteIfExists deletes the blob and its snapshots.
func (s *Storage) DeleteIfExists(ctx context.Context, key string) (bool, error) {
	_, err := s.container.NewBlobClient(key).Delete(ctx, &blob.DeleteOptions{
		DeleteSnapshots: to.Ptr(blob.DeleteSnapshotsOptionTypeInclude),
	})
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, wrapError("Delete", key, err)
	}
	return true, nil
}

func wrapError(op, key string, err error) error {
	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		return &prunable.ObjectError{Op: op, Key: key, Err: prunable.ErrNotFound}
	case bloberror.HasCode(err, bloberror.ContainerNotFound):
		return &prunable.ObjectError{Op: op, Key: key, Err: prunable.ErrContainerNotFound}
	case bloberror.HasCode(err, bloberror.AuthorizationFailure, bloberror.AuthenticationFailed,
		bloberror.InsufficientAccountPermissions):
		return &prunable.ObjectError{Op: op, Key: key, Err: prunable.ErrAccessDenied}
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusForbidden {
		return &prunable.ObjectError{Op: op, Key: key, Err: prunable.ErrAccessDenied}
	}
	return &prunable.ObjectError{Op: op, Key: key, Err: err}
}
