package main

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"mini-ide/internal/treewatch"
)

// NOTE: This file overrides package-level function variables
// (runtimeEventsEmitFn, newTreeWatcherFn). Do not use t.Parallel() here.

func enableWatch(app *App) {
	cfg := app.getConfigSnapshot()
	cfg.Explorer.Watch = true
	cfg.Explorer.WatchDebounceMS = 20
	app.setConfigSnapshot(cfg)
}

func TestWatcherPicksUpExternalChanges(t *testing.T) {
	captureRuntimeEvents(t)
	root := writeWorkspace(t, map[string]string{"a.txt": "a", "src/": ""})
	app := newWorkspaceTestApp(t)
	enableWatch(app)

	if err := app.OpenWorkspace(root); err != nil {
		t.Fatalf("OpenWorkspace() error = %v", err)
	}
	resolved := app.ctrl.Root()
	if err := app.ExpandDirectory(filepath.Join(resolved, "src")); err != nil {
		t.Fatalf("ExpandDirectory() error = %v", err)
	}
	waitForCondition(t, 2*time.Second, func() bool {
		app.watchMu.Lock()
		defer app.watchMu.Unlock()
		return app.watcher != nil && slices.Contains(app.watcher.Watched(), filepath.Join(resolved, "src"))
	}, "expanded directory was not watched")

	if err := os.WriteFile(filepath.Join(resolved, "b.txt"), []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(resolved, "src", "main.go"), []byte("package main"), 0o644); err != nil {
		t.Fatal(err)
	}

	want := []string{"src", "main.go", "a.txt", "b.txt"}
	waitForCondition(t, 5*time.Second, func() bool { return slices.Equal(nodeNames(app), want) },
		"external changes did not reach the tree")

	if err := os.Remove(filepath.Join(resolved, "a.txt")); err != nil {
		t.Fatal(err)
	}
	want = []string{"src", "main.go", "b.txt"}
	waitForCondition(t, 5*time.Second, func() bool { return slices.Equal(nodeNames(app), want) },
		"external removal did not reach the tree")
}

func TestStartWatcherSkippedWhenShuttingDown(t *testing.T) {
	app := newWorkspaceTestApp(t)
	app.shuttingDown.Store(true)

	app.startWatcher()
	if app.watcher != nil {
		t.Fatal("watcher started during shutdown")
	}
}

func TestStartWatcherToleratesWatcherFailure(t *testing.T) {
	captureRuntimeEvents(t)
	orig := newTreeWatcherFn
	t.Cleanup(func() { newTreeWatcherFn = orig })
	newTreeWatcherFn = func(time.Duration, func([]string)) (*treewatch.Watcher, error) {
		return nil, errors.New("too many open files")
	}

	root := writeWorkspace(t, map[string]string{"a.txt": "a"})
	app := newWorkspaceTestApp(t)
	enableWatch(app)

	if err := app.OpenWorkspace(root); err != nil {
		t.Fatalf("OpenWorkspace() error = %v, want open to succeed without a watcher", err)
	}
	if app.watcher != nil {
		t.Fatal("watcher set although creation failed")
	}
}

func TestStopWatcherOnCloseWorkspace(t *testing.T) {
	captureRuntimeEvents(t)
	root := writeWorkspace(t, map[string]string{"a.txt": "a"})
	app := newWorkspaceTestApp(t)
	enableWatch(app)

	if err := app.OpenWorkspace(root); err != nil {
		t.Fatalf("OpenWorkspace() error = %v", err)
	}
	if app.watcher == nil {
		t.Fatal("watcher not started with explorer.watch on")
	}
	if err := app.CloseWorkspace(); err != nil {
		t.Fatalf("CloseWorkspace() error = %v", err)
	}
	if app.watcher != nil {
		t.Fatal("watcher still set after CloseWorkspace")
	}
	// Stopping twice is a no-op.
	app.stopWatcher()
}

func TestHandleExternalChangeWithoutWorkers(t *testing.T) {
	app := NewApp()
	// No worker group yet; the notification is dropped.
	app.handleExternalChange([]string{"/w/src"})
}
