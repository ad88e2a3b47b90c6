package prunable

import (
	"context"
	"iter"
	"time"
)

type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time // zero when the store did not report a last-modified time
}

// Prunable is the capability a retention sweep needs from a container.
type Prunable interface {
	// List yields every object whose key starts with prefix. The sequence is
	// lazy, single-use and unordered; a non-nil error ends it.
	List(ctx context.Context, prefix string) iter.Seq2[ObjectInfo, error]

	// DeleteIfExists removes key together with its snapshots or versions and
	// reports whether anything was actually removed.
	DeleteIfExists(ctx context.Context, key string) (bool, error)
}
