package workspace

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"testing"

	"mini-ide/internal/fileaccess"
	"mini-ide/internal/testutil"
)

func TestOpenAlreadyOpenKeepsBuffer(t *testing.T) {
	f := openFixture(t, map[string]string{"a.txt": "hi", "b.txt": "bee"})
	ctx := context.Background()
	if err := f.ctrl.Open(ctx, p("a.txt")); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := f.ctrl.Edit(p("a.txt"), "edited"); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if err := f.ctrl.Open(ctx, p("b.txt")); err != nil {
		t.Fatalf("Open(b) error = %v", err)
	}
	if err := f.ctrl.Open(ctx, p("a.txt")); err != nil {
		t.Fatalf("Open() again error = %v", err)
	}

	doc := mustDocument(t, f.ctrl, p("a.txt"))
	if doc.Text != "edited" || !doc.Dirty {
		t.Fatalf("Document(a) = %+v, want edited dirty buffer", doc)
	}
	if got := f.fs.CallCount(testutil.OpRead, p("a.txt")); got != 1 {
		t.Fatalf("read calls = %d, want 1", got)
	}
	if active, _ := f.ctrl.ActiveDocument(); active.Path != p("a.txt") {
		t.Fatalf("active = %q, want a.txt", active.Path)
	}
}

func TestOpenReadFailureLeavesSessionUntouched(t *testing.T) {
	f := openFixture(t, map[string]string{"a.txt": "hi", "b.txt": "bee"})
	ctx := context.Background()
	if err := f.ctrl.Open(ctx, p("a.txt")); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	f.fs.Fail(testutil.OpRead, p("b.txt"), nil)

	err := f.ctrl.Open(ctx, p("b.txt"))
	if KindOf(err) != KindReadError {
		t.Fatalf("Open(b) kind = %q, want %q", KindOf(err), KindReadError)
	}
	if got := f.ctrl.OpenPaths(); !slices.Equal(got, []string{p("a.txt")}) {
		t.Fatalf("OpenPaths() = %v, want only a.txt", got)
	}
	if active, _ := f.ctrl.ActiveDocument(); active.Path != p("a.txt") {
		t.Fatalf("active = %q, want a.txt", active.Path)
	}
	if got := f.ctrl.Status(); got != "Error opening file" {
		t.Fatalf("Status() = %q", got)
	}

	if err := f.ctrl.Open(ctx, p("missing.txt")); KindOf(err) != KindReadError {
		t.Fatalf("Open(missing) kind = %q, want %q", KindOf(err), KindReadError)
	}
	if err := f.ctrl.Open(ctx, p()); KindOf(err) != KindReadError {
		t.Fatalf("Open(directory) kind = %q, want %q", KindOf(err), KindReadError)
	}
}

func TestDirtyTracksTextDifference(t *testing.T) {
	f := openFixture(t, map[string]string{"a.txt": "hi"})
	if err := f.ctrl.Open(context.Background(), p("a.txt")); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	steps := []struct {
		text      string
		wantDirty bool
	}{
		{"hi!", true},
		{"hi", false},
		{"", true},
		{"hi", false},
	}
	for _, step := range steps {
		if err := f.ctrl.Edit(p("a.txt"), step.text); err != nil {
			t.Fatalf("Edit(%q) error = %v", step.text, err)
		}
		doc := mustDocument(t, f.ctrl, p("a.txt"))
		if doc.Dirty != step.wantDirty || doc.Dirty != (doc.Text != doc.SavedText) {
			t.Fatalf("after Edit(%q) Dirty = %v, want %v", step.text, doc.Dirty, step.wantDirty)
		}
	}
}

func TestSaveFailureKeepsBufferDirty(t *testing.T) {
	f := openFixture(t, map[string]string{"a.txt": "hi"})
	ctx := context.Background()
	if err := f.ctrl.Open(ctx, p("a.txt")); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := f.ctrl.Edit(p("a.txt"), "hi!"); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if !mustDocument(t, f.ctrl, p("a.txt")).Dirty {
		t.Fatal("Dirty = false after edit")
	}
	f.fs.Fail(testutil.OpWrite, p("a.txt"), &fileaccess.Error{Op: "write", Kind: fileaccess.KindPermissionDenied, Path: p("a.txt"), Message: "read-only"})

	err := f.ctrl.Save(ctx, "")
	if KindOf(err) != KindWriteError {
		t.Fatalf("Save() kind = %q, want %q", KindOf(err), KindWriteError)
	}
	doc := mustDocument(t, f.ctrl, p("a.txt"))
	if !doc.Dirty || doc.Text != "hi!" || doc.SavedText != "hi" {
		t.Fatalf("Document() after failed save = %+v", doc)
	}
	if got := f.ctrl.Status(); got != "Error saving file" {
		t.Fatalf("Status() = %q, want %q", got, "Error saving file")
	}
}

func TestSaveCloseReopenRoundTrip(t *testing.T) {
	f := openFixture(t, map[string]string{"a.txt": "hi"})
	ctx := context.Background()
	path := p("a.txt")

	if err := f.ctrl.Open(ctx, path); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := f.ctrl.Edit(path, "X"); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if err := f.ctrl.Save(ctx, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if doc := mustDocument(t, f.ctrl, path); doc.Dirty {
		t.Fatalf("Dirty after save = true: %+v", doc)
	}
	if got := f.ctrl.Status(); got != "Saved: a.txt" {
		t.Fatalf("Status() = %q, want %q", got, "Saved: a.txt")
	}
	if !f.ctrl.Close(path) {
		t.Fatal("Close() = false")
	}
	if err := f.ctrl.Open(ctx, path); err != nil {
		t.Fatalf("Open() after close error = %v", err)
	}
	if doc := mustDocument(t, f.ctrl, path); doc.Text != "X" || doc.Dirty {
		t.Fatalf("reopened document = %+v, want clean X", doc)
	}
}

func TestSaveRequiresOpenDocument(t *testing.T) {
	f := openFixture(t, map[string]string{"a.txt": "hi"})
	ctx := context.Background()
	if err := f.ctrl.Save(ctx, ""); !errors.Is(err, ErrNoActiveDocument) {
		t.Fatalf("Save(no active) error = %v, want ErrNoActiveDocument", err)
	}
	if err := f.ctrl.Save(ctx, p("a.txt")); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Save(not open) error = %v, want ErrNotOpen", err)
	}
}

func TestCloseReassignsActiveByInsertionOrder(t *testing.T) {
	f := openFixture(t, map[string]string{"a.txt": "", "b.txt": "", "c.txt": ""})
	ctx := context.Background()
	for _, name := range []string{"c.txt", "a.txt", "b.txt"} {
		if err := f.ctrl.Open(ctx, p(name)); err != nil {
			t.Fatalf("Open(%s) error = %v", name, err)
		}
	}

	f.ctrl.Close(p("b.txt"))
	if active, _ := f.ctrl.ActiveDocument(); active.Path != p("c.txt") {
		t.Fatalf("active after closing b = %q, want c.txt", active.Path)
	}
	f.ctrl.Close(p("a.txt"))
	if active, _ := f.ctrl.ActiveDocument(); active.Path != p("c.txt") {
		t.Fatalf("active after closing inactive a = %q, want c.txt", active.Path)
	}
	f.ctrl.Close(p("c.txt"))
	if _, ok := f.ctrl.ActiveDocument(); ok {
		t.Fatal("active document present after closing the last one")
	}
	view := f.ctrl.SessionView()
	if view.Active != "" || view.ActiveDocument != nil || len(view.Tabs) != 0 || view.Status != "Ready" {
		t.Fatalf("SessionView() = %+v, want empty session with Ready status", view)
	}
	if f.ctrl.Close(p("c.txt")) {
		t.Fatal("Close(not open) = true, want no-op")
	}
}

func TestSwitchActiveCapturesOutgoingBuffer(t *testing.T) {
	f := openFixture(t, map[string]string{"a.txt": "a", "b.txt": "b"})
	ctx := context.Background()
	if err := f.ctrl.Open(ctx, p("a.txt")); err != nil {
		t.Fatalf("Open(a) error = %v", err)
	}
	if err := f.ctrl.Open(ctx, p("b.txt")); err != nil {
		t.Fatalf("Open(b) error = %v", err)
	}

	if err := f.ctrl.SwitchActive(p("a.txt"), "b typed"); err != nil {
		t.Fatalf("SwitchActive(a) error = %v", err)
	}
	b := mustDocument(t, f.ctrl, p("b.txt"))
	if b.Text != "b typed" || !b.Dirty {
		t.Fatalf("Document(b) = %+v, want captured dirty buffer", b)
	}
	if active, _ := f.ctrl.ActiveDocument(); active.Path != p("a.txt") {
		t.Fatalf("active = %q, want a.txt", active.Path)
	}
	if got := f.ctrl.Status(); got != "Editing: a.txt" {
		t.Fatalf("Status() = %q", got)
	}

	err := f.ctrl.SwitchActive(p("zzz.txt"), "lost")
	if !errors.Is(err, ErrNotOpen) {
		t.Fatalf("SwitchActive(not open) error = %v, want ErrNotOpen", err)
	}
	if a := mustDocument(t, f.ctrl, p("a.txt")); a.Text != "a" {
		t.Fatalf("rejected switch captured buffer: %+v", a)
	}
}

func TestEditRequiresActiveDocument(t *testing.T) {
	f := openFixture(t, map[string]string{"a.txt": "a", "b.txt": "b"})
	logs := testutil.CaptureLogBuffer(t, slog.LevelWarn)
	ctx := context.Background()

	if err := f.ctrl.Edit(p("a.txt"), "x"); !errors.Is(err, ErrNoActiveDocument) {
		t.Fatalf("Edit(no active) error = %v, want ErrNoActiveDocument", err)
	}
	if err := f.ctrl.Open(ctx, p("a.txt")); err != nil {
		t.Fatalf("Open(a) error = %v", err)
	}
	if err := f.ctrl.Open(ctx, p("b.txt")); err != nil {
		t.Fatalf("Open(b) error = %v", err)
	}
	if err := f.ctrl.Edit(p("a.txt"), "x"); !errors.Is(err, ErrNoActiveDocument) {
		t.Fatalf("Edit(inactive) error = %v, want ErrNoActiveDocument", err)
	}
	if a := mustDocument(t, f.ctrl, p("a.txt")); a.Text != "a" {
		t.Fatalf("inactive document changed: %+v", a)
	}
	if logs.Len() == 0 {
		t.Fatal("expected a warning for the contract violation")
	}
}

func TestTabsProjection(t *testing.T) {
	f := openFixture(t, map[string]string{"a.txt": "a", "main.js": "js"})
	ctx := context.Background()
	if err := f.ctrl.Open(ctx, p("a.txt")); err != nil {
		t.Fatalf("Open(a) error = %v", err)
	}
	if err := f.ctrl.Edit(p("a.txt"), "changed"); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if err := f.ctrl.Open(ctx, p("main.js")); err != nil {
		t.Fatalf("Open(main.js) error = %v", err)
	}

	want := []Tab{
		{Path: p("a.txt"), Title: "a.txt", Label: "● a.txt", Dirty: true, Active: false, FileType: "txt"},
		{Path: p("main.js"), Title: "main.js", Label: "main.js", Dirty: false, Active: true, FileType: "js"},
	}
	if got := f.ctrl.Tabs(); !slices.Equal(got, want) {
		t.Fatalf("Tabs() = %+v, want %+v", got, want)
	}
	view := f.ctrl.SessionView()
	if view.ActiveDocument == nil || view.ActiveDocument.Text != "js" {
		t.Fatalf("SessionView().ActiveDocument = %+v", view.ActiveDocument)
	}
	if f.events.count(EventSessionChanged) == 0 {
		t.Fatal("no session events recorded")
	}
}

func TestDocumentOutsideWorkspaceRejected(t *testing.T) {
	f := openFixture(t, map[string]string{"a.txt": "a"})
	if err := f.ctrl.Open(context.Background(), "/etc/passwd"); KindOf(err) != KindReadError {
		t.Fatalf("Open(outside) kind = %q, want %q", KindOf(err), KindReadError)
	}
	if got := f.fs.CallCount(testutil.OpRead, "/etc/passwd"); got != 0 {
		t.Fatalf("collaborator called for outside path %d times", got)
	}
}
