// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package plugin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of file events into one reload.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches plugin directories and hot-reloads the owning plugin
// when its files change. Reloads are handed to a dispatch function so
// they run on the proxy's dispatcher goroutine.
type Watcher struct {
	manager  *Manager
	dispatch func(func())
	log      *slog.Logger
	debounce time.Duration

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides the coalescing window.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithWatcherLogger overrides the watcher's logger.
func WithWatcherLogger(log *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = log }
}

// NewWatcher creates a watcher over the manager's loaded directory
// plugins. dispatch runs each reload; it must not be nil.
func NewWatcher(m *Manager, dispatch func(func()), opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		manager:  m,
		dispatch: dispatch,
		log:      slog.Default(),
		debounce: DefaultDebounce,
		fsw:      fsw,
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch adds a plugin directory to the watch set.
func (w *Watcher) Watch(dir string) error {
	return w.fsw.Add(dir)
}

// Run consumes file events until the context ends or the watcher closes.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			id, owned := w.manager.PathOwner(ev.Name)
			if !owned {
				continue
			}
			w.schedule(id)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("plugin watcher error", "error", err)
		}
	}
}

// schedule arms or extends the debounce timer for one plugin id.
func (w *Watcher) schedule(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[id]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[id] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()
		w.dispatch(func() {
			w.log.Info("plugin files changed, reloading", "plugin", id)
			if err := w.manager.Reload(id); err != nil {
				w.log.Error("hot reload failed", "plugin", id, "error", err)
			}
		})
	})
}

// Close stops the watcher and cancels pending reloads.
func (w *Watcher) Close() error {
	w.mu.Lock()
	for id, t := range w.pending {
		t.Stop()
		delete(w.pending, id)
	}
	w.mu.Unlock()
	return w.fsw.Close()
}
