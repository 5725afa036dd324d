package workspace

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mini-ide/internal/testutil"
)

const testRoot = "/w"

func p(parts ...string) string {
	return filepath.Join(append([]string{filepath.FromSlash(testRoot)}, parts...)...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []ChangeEvent
	names  []string
}

func (r *eventRecorder) Emit(name string, payload any) {
	ev, _ := payload.(ChangeEvent)
	r.mu.Lock()
	r.names = append(r.names, name)
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.names {
		if got == name {
			n++
		}
	}
	return n
}

type fixture struct {
	ctrl   *Controller
	fs     *testutil.FaultyCollaborator
	events *eventRecorder
}

// newFixture builds a controller over an in-memory workspace rooted at /w.
func newFixture(t *testing.T, files map[string]string, exclude ...string) *fixture {
	t.Helper()
	store := testutil.NewMemStore(t, testRoot, files)
	faulty := testutil.NewFaultyCollaborator(store)
	rec := &eventRecorder{}
	ctrl := NewController(Options{Collaborator: faulty, Emitter: rec, Exclude: exclude})
	return &fixture{ctrl: ctrl, fs: faulty, events: rec}
}

// openFixture is newFixture plus a successful OpenWorkspace.
func openFixture(t *testing.T, files map[string]string, exclude ...string) *fixture {
	t.Helper()
	f := newFixture(t, files, exclude...)
	if err := f.ctrl.OpenWorkspace(context.Background(), p()); err != nil {
		t.Fatalf("OpenWorkspace() error = %v", err)
	}
	return f
}

// renderLines formats nodes as indented names; directories end in "/"
// and expanded ones are prefixed with "v ", collapsed ones with "> ".
func renderLines(nodes []Node) []string {
	lines := make([]string, 0, len(nodes))
	for _, n := range nodes {
		var b strings.Builder
		b.WriteString(strings.Repeat("  ", n.Depth))
		if n.IsDirectory {
			if n.Expanded {
				b.WriteString("v ")
			} else {
				b.WriteString("> ")
			}
			b.WriteString(n.Name + "/")
			if n.Loading {
				b.WriteString(" ...")
			}
		} else {
			b.WriteString(n.Name)
		}
		lines = append(lines, b.String())
	}
	return lines
}

func assertRender(t *testing.T, ctrl *Controller, want ...string) {
	t.Helper()
	got := renderLines(ctrl.RenderSequence())
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("RenderSequence() =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func mustDocument(t *testing.T, ctrl *Controller, path string) DocumentView {
	t.Helper()
	doc, ok := ctrl.Document(path)
	if !ok {
		t.Fatalf("Document(%q) not open", path)
	}
	return doc
}

func waitForAsyncError(t *testing.T, done <-chan error, fallbackTimeout time.Duration, timeoutMessage string) error {
	t.Helper()
	timeout := fallbackTimeout
	if deadline, ok := t.Deadline(); ok {
		remaining := time.Until(deadline) / 4
		if remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		t.Fatalf("%s", timeoutMessage)
		return nil
	}
}

func waitForSignal(t *testing.T, done <-chan struct{}, fallbackTimeout time.Duration, timeoutMessage string) {
	t.Helper()
	timeout := fallbackTimeout
	if deadline, ok := t.Deadline(); ok {
		remaining := time.Until(deadline) / 4
		if remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		t.Fatalf("%s", timeoutMessage)
	}
}

func waitForCondition(t *testing.T, timeout time.Duration, condition func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s", message)
}
