package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dev-tams/cachesweep/internal/storage/prunable"
)

// Storage keeps a container as a directory under base. Keys map to
// slash-separated relative paths inside that directory.
type Storage struct {
	name string
	base string
}

func New(name, basePath string) *Storage {
	return &Storage{name: name, base: basePath}
}

func (s *Storage) Name() string { return s.name }

func (s *Storage) root() string {
	return filepath.Join(s.base, s.name)
}

func (s *Storage) pathOf(key string) string {
	return filepath.Join(s.root(), filepath.FromSlash(key))
}

func (s *Storage) Ping(_ context.Context) error {
	info, err := os.Stat(s.base)
	if err != nil {
		return fmt.Errorf("stat base: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("base %s is not a directory", s.base)
	}
	return nil
}

func (s *Storage) ContainerExists(_ context.Context) (bool, error) {
	info, err := os.Stat(s.root())
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat container: %w", err)
	}
	return info.IsDir(), nil
}

func (s *Storage) CreateContainerIfNotExists(ctx context.Context) (bool, error) {
	exists, err := s.ContainerExists(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := os.MkdirAll(s.root(), 0o755); err != nil {
		return false, fmt.Errorf("mkdir container: %w", err)
	}
	return true, nil
}

// Put writes to a temp file first and renames it into place so readers never
// see a partial object.
func (s *Storage) Put(_ context.Context, key string, body io.Reader, _ int64) error {
	finalPath := s.pathOf(key)

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}

	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *Storage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.pathOf(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &prunable.ObjectError{Op: "Get", Key: key, Err: prunable.ErrNotFound}
		}
		return nil, &prunable.ObjectError{Op: "Get", Key: key, Err: err}
	}
	return f, nil
}

func (s *Storage) Exists(_ context.Context, key string) (bool, error) {
	info, err := os.Stat(s.pathOf(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &prunable.ObjectError{Op: "Exists", Key: key, Err: err}
	}
	return !info.IsDir(), nil
}

func (s *Storage) List(ctx context.Context, prefix string) iter.Seq2[prunable.ObjectInfo, error] {
	return func(yield func(prunable.ObjectInfo, error) bool) {
		root := s.root()

		// Walk only the directory the prefix pins down; the key filter does the rest.
		dir := prefix
		if !strings.HasSuffix(dir, "/") {
			dir = path.Dir(dir)
		}
		start := filepath.Join(root, filepath.FromSlash(dir))

		errStop := errors.New("stop")
		err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			// Skip tmp files left by an interrupted Put.
			if filepath.Ext(p) == ".tmp" {
				return nil
			}

			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			key := filepath.ToSlash(rel)
			if !strings.HasPrefix(key, prefix) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return fmt.Errorf("stat: %w", err)
			}

			if !yield(prunable.ObjectInfo{Key: key, Size: info.Size(), ModTime: info.ModTime()}, nil) {
				return errStop
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStop) {
			yield(prunable.ObjectInfo{}, &prunable.ObjectError{Op: "List", Key: prefix, Err: err})
		}
	}
}

// DeleteIfExists removes the file for key. Local files carry no versions.
func (s *Storage) DeleteIfExists(_ context.Context, key string) (bool, error) {
	if err := os.Remove(s.pathOf(key)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &prunable.ObjectError{Op: "Delete", Key: key, Err: err}
	}
	return true, nil
}
