// Package memory is an in-memory container used by tests and local experiments.
package memory

import (
	"bytes"
	"context"
	"io"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/dev-tams/cachesweep/internal/storage/prunable"
)

type object struct {
	data    []byte
	modTime time.Time
}

// Store implements storage.Storage. Listing order follows Go map iteration,
// so callers cannot depend on it, same as a real provider.
type Store struct {
	name string

	mu      sync.RWMutex
	objects map[string]object
	exists  bool

	listCalls   int
	deleteCalls int
	pingCalls   int

	// PingErr, when set, fails every Ping.
	PingErr error

	// ListErr, when set, is returned for any listing whose prefix it maps.
	ListErr map[string]error
	// DeleteErr, when set, is returned for deletes of the mapped keys.
	DeleteErr map[string]error
	// OnList runs before each listing starts; tests use it to block or count.
	OnList func(prefix string)
}

func New(name string) *Store {
	return &Store{
		name:    name,
		objects: make(map[string]object),
		exists:  true,
	}
}

func (s *Store) Name() string { return s.name }

// Add stores key with the given last-modified time. A zero time models a
// provider that omits the timestamp.
func (s *Store) Add(key string, modTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{modTime: modTime}
}

func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Calls returns how many List and DeleteIfExists calls were made.
func (s *Store) Calls() (list, del int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listCalls, s.deleteCalls
}

// Remove deletes key directly, as another process racing the sweep would.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
}

func (s *Store) SetContainerExists(exists bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exists = exists
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingCalls++
	return s.PingErr
}

func (s *Store) Pings() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pingCalls
}

func (s *Store) ContainerExists(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exists, nil
}

func (s *Store) CreateContainerIfNotExists(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exists {
		return false, nil
	}
	s.exists = true
	return true, nil
}

func (s *Store) Put(_ context.Context, key string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{data: data, modTime: time.Now().UTC()}
	return nil
}

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, &prunable.ObjectError{Op: "Get", Key: key, Err: prunable.ErrNotFound}
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	return s.Has(key), nil
}

// List snapshots the matching keys up front and then yields them one at a time.
func (s *Store) List(ctx context.Context, prefix string) iter.Seq2[prunable.ObjectInfo, error] {
	return func(yield func(prunable.ObjectInfo, error) bool) {
		if s.OnList != nil {
			s.OnList(prefix)
		}

		s.mu.Lock()
		s.listCalls++
		listErr := s.ListErr[prefix]
		var matched []prunable.ObjectInfo
		for key, obj := range s.objects {
			if strings.HasPrefix(key, prefix) {
				matched = append(matched, prunable.ObjectInfo{Key: key, Size: int64(len(obj.data)), ModTime: obj.modTime})
			}
		}
		s.mu.Unlock()

		if listErr != nil {
			yield(prunable.ObjectInfo{}, &prunable.ObjectError{Op: "List", Key: prefix, Err: listErr})
			return
		}

		for _, info := range matched {
			if err := ctx.Err(); err != nil {
				yield(prunable.ObjectInfo{}, err)
				return
			}
			if !yield(info, nil) {
				return
			}
		}
	}
}

func (s *Store) DeleteIfExists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++

	if err := s.DeleteErr[key]; err != nil {
		return false, &prunable.ObjectError{Op: "Delete", Key: key, Err: err}
	}
	if _, ok := s.objects[key]; !ok {
		return false, nil
	}
	delete(s.objects, key)
	return true, nil
}
