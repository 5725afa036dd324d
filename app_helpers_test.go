package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mini-ide/internal/config"
	"mini-ide/internal/workerutil"

	"github.com/wailsapp/wails/v2/pkg/menu"
)

// NOTE: Helpers in this file override package-level function variables
// (runtimeEventsEmitFn, runtimeWindowSetTitleFn, runtimeMenu*Fn). Tests that
// use them must not call t.Parallel().

type recordedEvent struct {
	name    string
	payload any
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) emit(_ context.Context, name string, data ...any) {
	var payload any
	if len(data) > 0 {
		payload = data[0]
	}
	r.mu.Lock()
	r.events = append(r.events, recordedEvent{name: name, payload: payload})
	r.mu.Unlock()
}

func (r *eventRecorder) named(name string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, ev := range r.events {
		if ev.name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) count(name string) int {
	return len(r.named(name))
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// captureRuntimeEvents replaces runtimeEventsEmitFn with a recorder and
// stubs the window and menu runtime calls.
func captureRuntimeEvents(t *testing.T) *eventRecorder {
	t.Helper()
	origEmit := runtimeEventsEmitFn
	origTitle := runtimeWindowSetTitleFn
	origMenuSet := runtimeMenuSetApplicationMenuFn
	origMenuUpdate := runtimeMenuUpdateApplicationMenuFn
	t.Cleanup(func() {
		runtimeEventsEmitFn = origEmit
		runtimeWindowSetTitleFn = origTitle
		runtimeMenuSetApplicationMenuFn = origMenuSet
		runtimeMenuUpdateApplicationMenuFn = origMenuUpdate
	})

	rec := &eventRecorder{}
	runtimeEventsEmitFn = rec.emit
	runtimeWindowSetTitleFn = func(context.Context, string) {}
	runtimeMenuSetApplicationMenuFn = func(context.Context, *menu.Menu) {}
	runtimeMenuUpdateApplicationMenuFn = func(context.Context) {}
	return rec
}

func newConfigPathForAPITest(t *testing.T, fileName string) string {
	t.Helper()
	localAppData := t.TempDir()
	t.Setenv("LOCALAPPDATA", localAppData)
	t.Setenv("APPDATA", "")

	defaultPath := config.DefaultPath()
	return filepath.Join(filepath.Dir(defaultPath), fileName)
}

// writeWorkspace creates files (slash paths relative to the root) under a
// fresh temp directory. A path ending in "/" creates a directory.
func writeWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if rel[len(rel)-1] == '/' {
			if err := os.MkdirAll(full, 0o755); err != nil {
				t.Fatalf("MkdirAll(%s) error = %v", full, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("MkdirAll(%s) error = %v", filepath.Dir(full), err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", full, err)
		}
	}
	return root
}

// newWorkspaceTestApp returns an App with a runtime context, a config
// path under a temp LOCALAPPDATA and a worker group. The watcher is off.
func newWorkspaceTestApp(t *testing.T) *App {
	t.Helper()
	app := NewApp()
	app.setRuntimeContext(context.Background())
	app.configPath = newConfigPathForAPITest(t, "config.yaml")
	cfg := config.DefaultConfig()
	cfg.Explorer.Watch = false
	app.setConfigSnapshot(cfg)
	app.workers = workerutil.NewGroup(context.Background(), workerutil.RecoveryOptions{})
	t.Cleanup(func() {
		app.stopWatcher()
		app.workers.Stop(5 * time.Second)
	})
	return app
}

func nodeNames(app *App) []string {
	var names []string
	for _, node := range app.GetTree().Nodes {
		names = append(names, node.Name)
	}
	return names
}

func waitForCondition(t *testing.T, timeout time.Duration, fn func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(message)
}
