package storage

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	azstore "github.com/dev-tams/cachesweep/internal/storage/azblob"
	"github.com/dev-tams/cachesweep/internal/storage/local"
	s3store "github.com/dev-tams/cachesweep/internal/storage/s3"
)

// Kind names the backend a connection string selects.
type Kind string

const (
	KindAzure Kind = "azblob"
	KindS3    Kind = "s3"
	KindLocal Kind = "local"
)

// KindOf picks the backend from the connection string scheme. Anything that
// is neither file:// nor s3:// is treated as an Azure storage connection string.
func KindOf(connectionString string) Kind {
	lower := strings.ToLower(strings.TrimSpace(connectionString))
	switch {
	case strings.HasPrefix(lower, "file://"):
		return KindLocal
	case strings.HasPrefix(lower, "s3://"):
		return KindS3
	default:
		return KindAzure
	}
}

// Open builds a handle on container for the account described by connectionString.
//
// Supported forms:
//
//	DefaultEndpointsProtocol=https;AccountName=...;AccountKey=...   Azure Blob
//	UseDevelopmentStorage=true                                        Azurite
//	s3://[accessKey:secretKey@]host[:port]?region=...&pathStyle=true  S3-compatible, container is the bucket
//	s3://?region=eu-west-1                                            AWS S3 with the default credential chain
//	file:///var/lib/cachesweep                                        local directory, container is a subdirectory
func Open(ctx context.Context, connectionString, container string) (Storage, error) {
	conn := strings.TrimSpace(connectionString)
	container = strings.TrimSpace(container)
	if conn == "" {
		return nil, fmt.Errorf("storage: connection string is required")
	}
	if container == "" {
		return nil, fmt.Errorf("storage: container name is required")
	}

	switch KindOf(conn) {
	case KindLocal:
		u, err := url.Parse(conn)
		if err != nil {
			return nil, fmt.Errorf("storage: parse file connection string: %w", err)
		}
		base := u.Path
		if u.Host != "" {
			base = u.Host + u.Path
		}
		if base == "" {
			return nil, fmt.Errorf("storage: file connection string needs a path")
		}
		return local.New(container, base), nil

	case KindS3:
		opt, err := parseS3(conn)
		if err != nil {
			return nil, err
		}
		opt.Bucket = container
		s, err := s3store.New(ctx, opt)
		if err != nil {
			return nil, fmt.Errorf("storage %s: %w", container, err)
		}
		return s, nil

	default:
		s, err := azstore.New(conn, container)
		if err != nil {
			return nil, fmt.Errorf("storage %s: %w", container, err)
		}
		return s, nil
	}
}

func parseS3(conn string) (s3store.Options, error) {
	u, err := url.Parse(conn)
	if err != nil {
		return s3store.Options{}, fmt.Errorf("storage: parse s3 connection string: %w", err)
	}

	q := u.Query()
	opt := s3store.Options{
		Region: q.Get("region"),
	}
	if u.User != nil {
		opt.AccessKey = u.User.Username()
		opt.SecretKey, _ = u.User.Password()
	}
	if u.Host != "" {
		scheme := "https"
		if insecure, _ := strconv.ParseBool(q.Get("insecure")); insecure {
			scheme = "http"
		}
		opt.Endpoint = scheme + "://" + u.Host
	}
	if raw := q.Get("pathStyle"); raw != "" {
		opt.UsePathStyle, err = strconv.ParseBool(raw)
		if err != nil {
			return s3store.Options{}, fmt.Errorf("storage: invalid pathStyle %q", raw)
		}
	}
	if (opt.AccessKey == "") != (opt.SecretKey == "") {
		return s3store.Options{}, fmt.Errorf("storage: s3 access key and secret key must be set together")
	}
	return opt, nil
}
