package storage

import (
	"context"
	"io"

	"github.com/dev-tams/cachesweep/internal/storage/prunable"
)

// Re-exported so callers outside the storage tree only import this package.
var (
	ErrNotFound          = prunable.ErrNotFound
	ErrContainerNotFound = prunable.ErrContainerNotFound
	ErrAccessDenied      = prunable.ErrAccessDenied
)

type ObjectError = prunable.ObjectError

// Container covers the account and container checks run at startup.
type Container interface {
	// Ping verifies the account is reachable with the configured credentials.
	Ping(ctx context.Context) error
	ContainerExists(ctx context.Context) (bool, error)
	// CreateContainerIfNotExists reports whether the container was created by this call.
	CreateContainerIfNotExists(ctx context.Context) (bool, error)
}

type Storage interface {
	prunable.Prunable
	Container

	// Name returns the container name.
	Name() string
	Put(ctx context.Context, key string, body io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}
