package workspace

import (
	"context"
	"slices"
	"testing"

	"mini-ide/internal/testutil"
)

func TestRenameActiveDocument(t *testing.T) {
	f := openFixture(t, map[string]string{"a.txt": "a", "b.txt": "b"})
	ctx := context.Background()
	if err := f.ctrl.Open(ctx, p("b.txt")); err != nil {
		t.Fatalf("Open(b) error = %v", err)
	}
	if err := f.ctrl.Open(ctx, p("a.txt")); err != nil {
		t.Fatalf("Open(a) error = %v", err)
	}
	if err := f.ctrl.Edit(p("a.txt"), "unsaved"); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	newPath, err := f.ctrl.Rename(ctx, p("a.txt"), "a2.txt")
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if newPath != p("a2.txt") {
		t.Fatalf("Rename() = %q, want %q", newPath, p("a2.txt"))
	}
	if _, ok := f.ctrl.Document(p("a.txt")); ok {
		t.Fatal("document still keyed at old path")
	}
	doc := mustDocument(t, f.ctrl, p("a2.txt"))
	if doc.Text != "unsaved" || !doc.Dirty || doc.Title != "a2.txt" {
		t.Fatalf("Document(a2) = %+v", doc)
	}
	if active, _ := f.ctrl.ActiveDocument(); active.Path != p("a2.txt") {
		t.Fatalf("active = %q, want a2.txt", active.Path)
	}
	tabs := f.ctrl.Tabs()
	if len(tabs) != 2 || tabs[1].Title != "a2.txt" || tabs[1].Label != "● a2.txt" {
		t.Fatalf("Tabs() = %+v, want renamed second tab", tabs)
	}
	if got := f.fs.CallCount(testutil.OpRead, p("a2.txt")); got != 0 {
		t.Fatalf("renamed document was re-read %d times", got)
	}
	assertRender(t, f.ctrl, "a2.txt", "b.txt")
}

func TestRenameFailureKeepsState(t *testing.T) {
	f := openFixture(t, map[string]string{"a.txt": "a", "b.txt": "b"})
	ctx := context.Background()
	if err := f.ctrl.Open(ctx, p("a.txt")); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	f.fs.Fail(testutil.OpRename, p("a.txt"), nil)
	if _, err := f.ctrl.Rename(ctx, p("a.txt"), "c.txt"); KindOf(err) != KindRenameError {
		t.Fatalf("Rename() kind = %q, want %q", KindOf(err), KindRenameError)
	}
	f.fs.Clear(testutil.OpRename, p("a.txt"))

	if _, err := f.ctrl.Rename(ctx, p("a.txt"), "b.txt"); KindOf(err) != KindAlreadyExists {
		t.Fatalf("Rename(onto b) kind = %q, want %q", KindOf(err), KindAlreadyExists)
	}
	if active, _ := f.ctrl.ActiveDocument(); active.Path != p("a.txt") {
		t.Fatalf("active = %q, want a.txt", active.Path)
	}
	assertRender(t, f.ctrl, "a.txt", "b.txt")
}

func TestRenameRejectsInvalidNames(t *testing.T) {
	f := openFixture(t, map[string]string{"a.txt": "a"})
	for _, name := range []string{"", ".", "..", "x/y", `x\y`} {
		if _, err := f.ctrl.Rename(context.Background(), p("a.txt"), name); KindOf(err) != KindRenameError {
			t.Fatalf("Rename(%q) kind = %q, want %q", name, KindOf(err), KindRenameError)
		}
	}
	if _, err := f.ctrl.Rename(context.Background(), p(), "root2"); KindOf(err) != KindRenameError {
		t.Fatalf("Rename(root) kind = %q, want %q", KindOf(err), KindRenameError)
	}
	if got := f.fs.CallCount(testutil.OpRename, p("a.txt")); got != 0 {
		t.Fatalf("collaborator rename calls = %d, want 0", got)
	}
	if got, err := f.ctrl.Rename(context.Background(), p("a.txt"), "a.txt"); err != nil || got != p("a.txt") {
		t.Fatalf("Rename(same name) = %q, %v", got, err)
	}
}

func TestRenameDirectoryRekeysNestedDocuments(t *testing.T) {
	f := openFixture(t, map[string]string{
		"d/b.txt":   "b",
		"d/e/c.txt": "c",
		"lib/x.txt": "x",
	})
	ctx := context.Background()
	for _, dir := range []string{p("d"), p("d", "e")} {
		if err := f.ctrl.Expand(ctx, dir); err != nil {
			t.Fatalf("Expand(%q) error = %v", dir, err)
		}
	}
	for _, doc := range []string{p("d", "b.txt"), p("lib", "x.txt"), p("d", "e", "c.txt")} {
		if err := f.ctrl.Open(ctx, doc); err != nil {
			t.Fatalf("Open(%q) error = %v", doc, err)
		}
	}

	if _, err := f.ctrl.Rename(ctx, p("d"), "n"); err != nil {
		t.Fatalf("Rename(d) error = %v", err)
	}
	want := []string{p("n", "b.txt"), p("lib", "x.txt"), p("n", "e", "c.txt")}
	if got := f.ctrl.OpenPaths(); !slices.Equal(got, want) {
		t.Fatalf("OpenPaths() = %v, want %v", got, want)
	}
	if active, _ := f.ctrl.ActiveDocument(); active.Path != p("n", "e", "c.txt") {
		t.Fatalf("active = %q", active.Path)
	}
	assertRender(t, f.ctrl,
		"> lib/",
		"v n/",
		"  v e/",
		"    c.txt",
		"  b.txt",
	)
}

func TestDeleteClosesDocuments(t *testing.T) {
	f := openFixture(t, map[string]string{
		"a.txt":     "a",
		"d/b.txt":   "b",
		"d/e/c.txt": "c",
	})
	ctx := context.Background()
	for _, dir := range []string{p("d"), p("d", "e")} {
		if err := f.ctrl.Expand(ctx, dir); err != nil {
			t.Fatalf("Expand(%q) error = %v", dir, err)
		}
	}
	for _, doc := range []string{p("a.txt"), p("d", "b.txt"), p("d", "e", "c.txt")} {
		if err := f.ctrl.Open(ctx, doc); err != nil {
			t.Fatalf("Open(%q) error = %v", doc, err)
		}
	}

	if err := f.ctrl.Delete(ctx, p("d"), true); err != nil {
		t.Fatalf("Delete(d) error = %v", err)
	}
	if got := f.ctrl.OpenPaths(); !slices.Equal(got, []string{p("a.txt")}) {
		t.Fatalf("OpenPaths() = %v, want only a.txt", got)
	}
	if active, _ := f.ctrl.ActiveDocument(); active.Path != p("a.txt") {
		t.Fatalf("active = %q, want a.txt", active.Path)
	}
	if slices.Contains(f.ctrl.ExpandedPaths(), p("d", "e")) {
		t.Fatal("deleted directory still expanded")
	}
	assertRender(t, f.ctrl, "a.txt")

	if err := f.ctrl.Delete(ctx, p("a.txt"), false); err != nil {
		t.Fatalf("Delete(a) error = %v", err)
	}
	if _, ok := f.ctrl.ActiveDocument(); ok {
		t.Fatal("active document after deleting the last open file")
	}
	if got := f.ctrl.Status(); got != "Deleted: a.txt" {
		t.Fatalf("Status() = %q", got)
	}
}

func TestDeleteFailureKeepsState(t *testing.T) {
	f := openFixture(t, map[string]string{"a.txt": "a"})
	ctx := context.Background()
	if err := f.ctrl.Open(ctx, p("a.txt")); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	f.fs.Fail(testutil.OpDelete, p("a.txt"), nil)

	if err := f.ctrl.Delete(ctx, p("a.txt"), false); KindOf(err) != KindDeleteError {
		t.Fatalf("Delete() kind = %q, want %q", KindOf(err), KindDeleteError)
	}
	if _, ok := f.ctrl.Document(p("a.txt")); !ok {
		t.Fatal("document closed after failed delete")
	}
	if err := f.ctrl.Delete(ctx, p(), true); KindOf(err) != KindDeleteError {
		t.Fatalf("Delete(root) kind = %q, want %q", KindOf(err), KindDeleteError)
	}
	assertRender(t, f.ctrl, "a.txt")
}

func TestCreateEntry(t *testing.T) {
	f := openFixture(t, map[string]string{"a.txt": "a", "d/b.txt": "b"})
	ctx := context.Background()

	got, err := f.ctrl.CreateEntry(ctx, p(), "new.txt", false)
	if err != nil || got != p("new.txt") {
		t.Fatalf("CreateEntry(file) = %q, %v", got, err)
	}
	if status := f.ctrl.Status(); status != "Created: new.txt" {
		t.Fatalf("Status() = %q", status)
	}
	if _, err := f.ctrl.CreateEntry(ctx, p(), "folder", true); err != nil {
		t.Fatalf("CreateEntry(dir) error = %v", err)
	}
	if status := f.ctrl.Status(); status != "Created: folder/" {
		t.Fatalf("Status() = %q", status)
	}
	assertRender(t, f.ctrl, "> d/", "> folder/", "a.txt", "new.txt")

	// Collapsed parents are invalidated but not listed until expanded.
	if _, err := f.ctrl.CreateEntry(ctx, p("d"), "c.txt", false); err != nil {
		t.Fatalf("CreateEntry(d/c.txt) error = %v", err)
	}
	if got := f.fs.CallCount(testutil.OpList, p("d")); got != 0 {
		t.Fatalf("list calls for collapsed d = %d, want 0", got)
	}
	if err := f.ctrl.Expand(ctx, p("d")); err != nil {
		t.Fatalf("Expand(d) error = %v", err)
	}
	assertRender(t, f.ctrl, "v d/", "  b.txt", "  c.txt", "> folder/", "a.txt", "new.txt")

	if _, err := f.ctrl.CreateEntry(ctx, p(), "a.txt", false); KindOf(err) != KindAlreadyExists {
		t.Fatalf("CreateEntry(existing) kind = %q, want %q", KindOf(err), KindAlreadyExists)
	}
	if _, err := f.ctrl.CreateEntry(ctx, p(), "../escape", true); KindOf(err) != KindCreateError {
		t.Fatalf("CreateEntry(bad name) kind = %q, want %q", KindOf(err), KindCreateError)
	}
	f.fs.Fail(testutil.OpCreateDirectory, "", nil)
	if _, err := f.ctrl.CreateEntry(ctx, p(), "other", true); KindOf(err) != KindCreateError {
		t.Fatalf("CreateEntry(failing) kind = %q, want %q", KindOf(err), KindCreateError)
	}
	if status := f.ctrl.Status(); status != "Error creating folder" {
		t.Fatalf("Status() = %q", status)
	}
}
