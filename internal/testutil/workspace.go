package testutil

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"mini-ide/internal/fileaccess"
)

// NewMemStore builds an in-memory workspace whose host root is root.
// Keys of files are slash-separated paths relative to root; a key ending
// in "/" creates an empty directory.
func NewMemStore(t *testing.T, root string, files map[string]string) *fileaccess.Store {
	t.Helper()
	fs := memfs.New()
	if err := fs.MkdirAll("/", 0o755); err != nil {
		t.Fatalf("memfs MkdirAll(/) error = %v", err)
	}
	for name, content := range files {
		p := "/" + strings.TrimPrefix(name, "/")
		if strings.HasSuffix(p, "/") {
			if err := fs.MkdirAll(strings.TrimSuffix(p, "/"), 0o755); err != nil {
				t.Fatalf("memfs MkdirAll(%q) error = %v", p, err)
			}
			continue
		}
		if err := util.WriteFile(fs, p, []byte(content), 0o644); err != nil {
			t.Fatalf("memfs WriteFile(%q) error = %v", p, err)
		}
	}
	return fileaccess.NewStore(fs, filepath.FromSlash(root))
}

// Op names one Collaborator method.
type Op string

const (
	OpRead            Op = "read"
	OpWrite           Op = "write"
	OpList            Op = "list"
	OpCreateDirectory Op = "mkdir"
	OpCreateFile      Op = "create"
	OpRename          Op = "rename"
	OpDelete          Op = "delete"
)

// Call records one collaborator invocation.
type Call struct {
	Op   Op
	Path string
}

type faultKey struct {
	op   Op
	path string
}

// Gate holds a collaborator call in flight until released.
type Gate struct {
	entered     chan struct{}
	release     chan struct{}
	enterOnce   sync.Once
	releaseOnce sync.Once
}

func newGate() *Gate {
	return &Gate{entered: make(chan struct{}), release: make(chan struct{})}
}

// Entered is closed once a call reaches the gate.
func (g *Gate) Entered() <-chan struct{} { return g.entered }

// Release lets the held call (and any later one) proceed.
func (g *Gate) Release() {
	g.releaseOnce.Do(func() { close(g.release) })
}

// FaultyCollaborator wraps a Collaborator, records every call and can fail
// or hold chosen operations. A fault or gate registered with an empty path
// applies to every path.
type FaultyCollaborator struct {
	inner fileaccess.Collaborator

	mu     sync.Mutex
	faults map[faultKey]error
	gates  map[faultKey]*Gate
	calls  []Call
}

var _ fileaccess.Collaborator = (*FaultyCollaborator)(nil)

// NewFaultyCollaborator wraps inner.
func NewFaultyCollaborator(inner fileaccess.Collaborator) *FaultyCollaborator {
	return &FaultyCollaborator{
		inner:  inner,
		faults: make(map[faultKey]error),
		gates:  make(map[faultKey]*Gate),
	}
}

// Fail makes op on path return err until Clear is called. A nil err
// installs a generic *fileaccess.Error of kind Other.
func (f *FaultyCollaborator) Fail(op Op, path string, err error) {
	if err == nil {
		err = &fileaccess.Error{Op: string(op), Kind: fileaccess.KindOther, Path: path, Message: "injected failure"}
	}
	f.mu.Lock()
	f.faults[faultKey{op: op, path: path}] = err
	f.mu.Unlock()
}

// Clear removes the fault registered for op on path.
func (f *FaultyCollaborator) Clear(op Op, path string) {
	f.mu.Lock()
	delete(f.faults, faultKey{op: op, path: path})
	f.mu.Unlock()
}

// Block holds op on path at a gate until the gate is released or the
// call's context ends.
func (f *FaultyCollaborator) Block(op Op, path string) *Gate {
	g := newGate()
	f.mu.Lock()
	f.gates[faultKey{op: op, path: path}] = g
	f.mu.Unlock()
	return g
}

// Calls returns every recorded call in order.
func (f *FaultyCollaborator) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount counts calls of op on path.
func (f *FaultyCollaborator) CallCount(op Op, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op && c.Path == path {
			n++
		}
	}
	return n
}

func (f *FaultyCollaborator) enter(ctx context.Context, op Op, path string) error {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Op: op, Path: path})
	gate := f.gates[faultKey{op: op, path: path}]
	if gate == nil {
		gate = f.gates[faultKey{op: op}]
	}
	f.mu.Unlock()

	if gate != nil {
		gate.enterOnce.Do(func() { close(gate.entered) })
		select {
		case <-gate.release:
		case <-ctx.Done():
			return &fileaccess.Error{Op: string(op), Kind: fileaccess.KindCanceled, Path: path, Message: ctx.Err().Error(), Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.faults[faultKey{op: op, path: path}]; ok {
		return err
	}
	if err, ok := f.faults[faultKey{op: op}]; ok {
		return err
	}
	return nil
}

func (f *FaultyCollaborator) ReadFile(ctx context.Context, path string) (string, error) {
	if err := f.enter(ctx, OpRead, path); err != nil {
		return "", err
	}
	return f.inner.ReadFile(ctx, path)
}

func (f *FaultyCollaborator) WriteFile(ctx context.Context, path string, content string) error {
	if err := f.enter(ctx, OpWrite, path); err != nil {
		return err
	}
	return f.inner.WriteFile(ctx, path, content)
}

func (f *FaultyCollaborator) ListDirectory(ctx context.Context, path string) ([]fileaccess.Entry, error) {
	if err := f.enter(ctx, OpList, path); err != nil {
		return nil, err
	}
	return f.inner.ListDirectory(ctx, path)
}

func (f *FaultyCollaborator) CreateDirectory(ctx context.Context, path string) error {
	if err := f.enter(ctx, OpCreateDirectory, path); err != nil {
		return err
	}
	return f.inner.CreateDirectory(ctx, path)
}

func (f *FaultyCollaborator) CreateFile(ctx context.Context, path string, initialContent string) error {
	if err := f.enter(ctx, OpCreateFile, path); err != nil {
		return err
	}
	return f.inner.CreateFile(ctx, path, initialContent)
}

func (f *FaultyCollaborator) Rename(ctx context.Context, oldPath string, newPath string) error {
	if err := f.enter(ctx, OpRename, oldPath); err != nil {
		return err
	}
	return f.inner.Rename(ctx, oldPath, newPath)
}

func (f *FaultyCollaborator) Delete(ctx context.Context, path string, isDirectory bool) error {
	if err := f.enter(ctx, OpDelete, path); err != nil {
		return err
	}
	return f.inner.Delete(ctx, path, isDirectory)
}

// ErrInjected is a convenience error for tests that only need a failure.
var ErrInjected = errors.New("injected failure")
