package main

import (
	"context"
	"log/slog"

	"mini-ide/internal/treewatch"
)

var newTreeWatcherFn = treewatch.New

// startWatcher watches every cached directory of the open workspace.
// External create, remove and rename events re-list the affected
// directories.
func (a *App) startWatcher() {
	if a.shuttingDown.Load() || a.workers == nil {
		return
	}
	cfg := a.getConfigSnapshot()
	w, err := newTreeWatcherFn(cfg.Explorer.WatchDebounce(), a.handleExternalChange)
	if err != nil {
		slog.Warn("[WARN-WATCH] explorer watcher unavailable", "error", err)
		return
	}

	a.watchMu.Lock()
	if a.watcher != nil {
		a.watchMu.Unlock()
		_ = w.Close()
		return
	}
	a.watcher = w
	a.watchMu.Unlock()

	if err := w.Watch(a.ctrl.CachedDirectories()); err != nil {
		slog.Debug("[DEBUG-WATCH] some directories are not watched", "error", err)
	}
	a.workers.Go("tree-watcher", w.Run)
}

func (a *App) stopWatcher() {
	a.watchMu.Lock()
	w := a.watcher
	a.watcher = nil
	a.watchMu.Unlock()
	if w == nil {
		return
	}
	if err := w.Close(); err != nil {
		slog.Debug("[DEBUG-WATCH] watcher close failed", "error", err)
	}
}

// syncWatchedDirectories follows the cached listings after a tree change.
func (a *App) syncWatchedDirectories() {
	a.watchMu.Lock()
	w := a.watcher
	a.watchMu.Unlock()
	if w == nil {
		return
	}
	if err := w.Watch(a.ctrl.CachedDirectories()); err != nil {
		slog.Debug("[DEBUG-WATCH] some directories are not watched", "error", err)
	}
}

// handleExternalChange runs on the watcher's timer goroutine.
func (a *App) handleExternalChange(dirs []string) {
	if a.workers == nil {
		return
	}
	a.workers.Go("external-change", func(ctx context.Context) {
		if err := a.ctrl.HandleExternalChange(ctx, dirs); err != nil {
			slog.Debug("[DEBUG-WATCH] external change refresh incomplete", "dirs", dirs, "error", err)
		}
	})
}
