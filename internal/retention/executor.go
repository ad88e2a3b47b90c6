package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dev-tams/cachesweep/internal/storage/prunable"
)

// ErrIncompleteConfig is returned when the cache connection string or
// container name is blank.
var ErrIncompleteConfig = errors.New("retention: cache connection string or container name is not configured")

// Opener returns a handle to the named container.
type Opener func(ctx context.Context, connectionString, container string) (prunable.Prunable, error)

type Executor struct {
	open Opener
	now  func() time.Time
}

func NewExecutor(open Opener, now func() time.Time) *Executor {
	if now == nil {
		now = time.Now
	}
	return &Executor{open: open, now: now}
}

// Execute opens the policy's container and sweeps it.
func (e *Executor) Execute(ctx context.Context, p Policy, prefixes []string) (int, error) {
	if !p.HasIdentity() {
		return 0, ErrIncompleteConfig
	}

	store, err := e.open(ctx, p.ConnectionString, p.ContainerName)
	if err != nil {
		return 0, fmt.Errorf("open container %s: %w", p.ContainerName, err)
	}
	return Sweep(ctx, store, e.now().Add(-p.MaxAge), prefixes)
}

// Sweep deletes every object under prefixes last modified strictly before
// cutoff. Objects without a timestamp are kept. Only deletes that removed
// something are counted. A delete reporting not found is ignored; any other
// error stops the pass and is returned with the count so far.
func Sweep(ctx context.Context, store prunable.Prunable, cutoff time.Time, prefixes []string) (int, error) {
	deleted := 0
	for _, prefix := range prefixes {
		for obj, err := range store.List(ctx, prefix) {
			if err != nil {
				return deleted, fmt.Errorf("list %q: %w", prefix, err)
			}
			if obj.ModTime.IsZero() || !obj.ModTime.Before(cutoff) {
				continue
			}

			ok, err := store.DeleteIfExists(ctx, obj.Key)
			if err != nil {
				if errors.Is(err, prunable.ErrNotFound) {
					continue
				}
				return deleted, fmt.Errorf("delete %q: %w", obj.Key, err)
			}
			if ok {
				deleted++
			}
		}
	}
	return deleted, nil
}
