// Package watcher subscribes to recursive filesystem change
// notifications for a set of library roots and schedules a rescan
// after a coalescing delay: a single outstanding debounce timer per
// process, further events swallowed while one is pending.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the coalescing delay applied between the first
// filesystem event and the triggered rescan.
const DefaultDebounce = 500 * time.Millisecond

// RescanFunc is invoked after the debounce window elapses. The Watcher
// never mutates library state itself; this is its only effect.
type RescanFunc func()

// Watcher wraps an fsnotify watcher with recursive directory
// registration and a single-outstanding debounce timer. It never
// watches individual files, only directories — rescans re-derive
// everything from the filesystem, so per-file granularity buys
// nothing.
type Watcher struct {
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration
	onRescan RescanFunc

	mu    sync.Mutex
	timer *time.Timer
}

// New constructs a Watcher. Call Add for each configured root before
// Run.
func New(logger *slog.Logger, onRescan RescanFunc, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{fsw: fsw, logger: logger, debounce: debounce, onRescan: onRescan}, nil
}

// Add registers root and every directory beneath it for change
// notifications. A root that does not exist yet is logged and skipped,
// not fatal: the operator may be about to mount it.
func (w *Watcher) Add(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("watcher: cannot walk path", slog.String("path", path), slog.Any("error", err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			w.logger.Warn("watcher: cannot watch directory", slog.String("path", path), slog.Any("error", addErr))
		}
		return nil
	})
}

// Run processes filesystem events until ctx is cancelled. Every event
// arms the debounce timer if one is not already pending; a directory
// created during the run is itself registered so newly added
// author/title folders are covered without a restart.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(ev.Name); err != nil {
						w.logger.Warn("watcher: cannot watch new directory", slog.String("path", ev.Name), slog.Any("error", err))
					}
				}
			}
			w.scheduleRescan()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher: backend error", slog.Any("error", err))
		}
	}
}

// scheduleRescan arms the single outstanding debounce timer. If one is
// already pending, this event is swallowed rather than restarting or
// stacking another timer.
func (w *Watcher) scheduleRescan() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		return
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		w.timer = nil
		w.mu.Unlock()
		w.onRescan()
	})
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
