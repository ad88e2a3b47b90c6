package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a Live config when its file changes on disk. The parent
// directory is watched so editors that replace the file on save, and
// mounted config maps that swap symlinks, are both picked up.
type Watcher struct {
	live     *Live
	logger   *zap.Logger
	debounce time.Duration
	target   string

	mu    sync.Mutex
	timer *time.Timer
}

func NewWatcher(live *Live, logger *zap.Logger, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		live:     live,
		logger:   logger,
		debounce: debounce,
		target:   filepath.Clean(live.Path()),
	}
}

// Watch blocks until ctx is canceled. onReload, if non-nil, runs after
// every successful reload.
func (w *Watcher) Watch(ctx context.Context, onReload func()) error {
	if w.live.Path() == "" {
		<-ctx.Done()
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.target), err)
	}

	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.schedule(onReload)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(ev.Name)
	if name == w.target {
		return true
	}
	// Kubernetes config maps update through a "..data" symlink swap.
	return filepath.Base(name) == "..data"
}

func (w *Watcher) schedule(onReload func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.live.Reload(); err != nil {
			w.logger.Warn("config reload failed, keeping previous settings",
				zap.String("path", w.target), zap.Error(err))
			return
		}
		w.logger.Info("config reloaded", zap.String("path", w.target))
		if onReload != nil {
			onReload()
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}
