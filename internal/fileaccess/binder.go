package fileaccess

import (
	"context"
	"sync"
)

// Binder is a Collaborator that forwards to the Store of the currently
// bound workspace root. Rebinding lets one long-lived controller switch
// workspaces; requests still in flight against the old root reach the new
// store and fail its root check.
type Binder struct {
	open func(root string) (*Store, error)

	mu    sync.RWMutex
	store *Store
}

var _ Collaborator = (*Binder)(nil)

// NewBinder returns an unbound Binder. A nil open selects NewOSStore.
func NewBinder(open func(root string) (*Store, error)) *Binder {
	if open == nil {
		open = NewOSStore
	}
	return &Binder{open: open}
}

// Bind opens a Store for root and makes it current. On failure the
// previous binding is kept.
func (b *Binder) Bind(root string) (string, error) {
	store, err := b.open(root)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.store = store
	b.mu.Unlock()
	return store.Root(), nil
}

// Unbind drops the current store.
func (b *Binder) Unbind() {
	b.mu.Lock()
	b.store = nil
	b.mu.Unlock()
}

// Root returns the bound root, or "".
func (b *Binder) Root() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.store == nil {
		return ""
	}
	return b.store.Root()
}

func (b *Binder) current(op string, path string) (*Store, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.store == nil {
		return nil, newError(op, KindInvalidPath, path, "no workspace is bound")
	}
	return b.store, nil
}

func (b *Binder) ReadFile(ctx context.Context, path string) (string, error) {
	s, err := b.current("read", path)
	if err != nil {
		return "", err
	}
	return s.ReadFile(ctx, path)
}

func (b *Binder) WriteFile(ctx context.Context, path string, content string) error {
	s, err := b.current("write", path)
	if err != nil {
		return err
	}
	return s.WriteFile(ctx, path, content)
}

func (b *Binder) ListDirectory(ctx context.Context, path string) ([]Entry, error) {
	s, err := b.current("list", path)
	if err != nil {
		return nil, err
	}
	return s.ListDirectory(ctx, path)
}

func (b *Binder) CreateDirectory(ctx context.Context, path string) error {
	s, err := b.current("mkdir", path)
	if err != nil {
		return err
	}
	return s.CreateDirectory(ctx, path)
}

func (b *Binder) CreateFile(ctx context.Context, path string, initialContent string) error {
	s, err := b.current("create", path)
	if err != nil {
		return err
	}
	return s.CreateFile(ctx, path, initialContent)
}

func (b *Binder) Rename(ctx context.Context, oldPath string, newPath string) error {
	s, err := b.current("rename", oldPath)
	if err != nil {
		return err
	}
	return s.Rename(ctx, oldPath, newPath)
}

func (b *Binder) Delete(ctx context.Context, path string, isDirectory bool) error {
	s, err := b.current("delete", path)
	if err != nil {
		return err
	}
	return s.Delete(ctx, path, isDirectory)
}
