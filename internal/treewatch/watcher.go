// Package treewatch reports on-disk changes to directories whose listings
// the explorer has cached.
package treewatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when New is given a non-positive debounce.
const DefaultDebounce = 150 * time.Millisecond

// structuralOps are the events that change a directory listing. Content
// writes and chmods do not.
const structuralOps = fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// Watcher coalesces structural events per directory and calls notify with
// the changed directories once events stop arriving for the debounce
// window. notify runs on a timer goroutine without any Watcher lock held.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	notify   func(dirs []string)

	mu      sync.Mutex
	watched map[string]struct{}
	pending map[string]struct{}
	timer   *time.Timer
	closed  bool
}

// New creates a watcher with nothing watched yet.
func New(debounce time.Duration, notify func(dirs []string)) (*Watcher, error) {
	if notify == nil {
		return nil, errors.New("treewatch: notify callback is required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("treewatch: create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		fsw:      fsw,
		debounce: debounce,
		notify:   notify,
		watched:  make(map[string]struct{}),
		pending:  make(map[string]struct{}),
	}, nil
}

// Watch makes the watched set equal to dirs. Directories that cannot be
// added are skipped and reported in the joined error.
func (w *Watcher) Watch(dirs []string) error {
	want := make(map[string]struct{}, len(dirs))
	for _, dir := range dirs {
		want[filepath.Clean(dir)] = struct{}{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("treewatch: watcher is closed")
	}

	var errs []error
	for dir := range w.watched {
		if _, keep := want[dir]; keep {
			continue
		}
		if err := w.fsw.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			slog.Debug("[DEBUG-WATCH] remove watch failed", "dir", dir, "error", err)
		}
		delete(w.watched, dir)
	}
	for dir := range want {
		if _, ok := w.watched[dir]; ok {
			continue
		}
		if err := w.fsw.Add(dir); err != nil {
			errs = append(errs, fmt.Errorf("watch %s: %w", dir, err))
			continue
		}
		w.watched[dir] = struct{}{}
	}
	return errors.Join(errs...)
}

// Watched returns the watched directories in sorted order.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Sorted(maps.Keys(w.watched))
}

// Run forwards fsnotify events until ctx ends or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("[WARN-WATCH] watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&structuralOps == 0 {
		return
	}
	name := filepath.Clean(ev.Name)
	parent := filepath.Dir(name)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	marked := false
	if _, ok := w.watched[parent]; ok {
		w.pending[parent] = struct{}{}
		marked = true
	}
	// A watched directory that disappears is reported itself as well.
	if _, ok := w.watched[name]; ok && ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.pending[name] = struct{}{}
		marked = true
	}
	if !marked {
		return
	}
	slog.Debug("[DEBUG-WATCH] structural change", "path", name, "op", ev.Op.String())
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.flush)
		return
	}
	w.timer.Reset(w.debounce)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if w.closed || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	dirs := slices.Sorted(maps.Keys(w.pending))
	clear(w.pending)
	w.mu.Unlock()

	w.notify(dirs)
}

// Close stops the watcher and drops pending notifications.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	clear(w.pending)
	w.mu.Unlock()
	return w.fsw.Close()
}
