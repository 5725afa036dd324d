package fileaccess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

const (
	// MaxFileBytes caps ReadFile. Larger documents are rejected rather
	// than streamed.
	MaxFileBytes int64 = 16 << 20

	filePerm os.FileMode = 0o644
	dirPerm  os.FileMode = 0o755
)

// Store is a Collaborator backed by a billy.Filesystem rooted at a host
// directory. Callers pass absolute host paths; Store translates them to
// filesystem paths and refuses anything outside the root.
type Store struct {
	fs   billy.Filesystem
	root string
}

var _ Collaborator = (*Store)(nil)

// NewOSStore binds a Store to a directory on the host disk. Path traversal
// outside root is blocked by both Store and the bound billy filesystem.
func NewOSStore(root string) (*Store, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, newError("open", KindInvalidPath, root, "workspace root is required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, classify("open", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, classify("open", abs, err)
	}
	if !info.IsDir() {
		return nil, newError("open", KindNotDirectory, abs, "not a directory")
	}
	return NewStore(osfs.New(abs, osfs.WithBoundOS()), abs), nil
}

// NewStore wraps fs, treating root as the host path of fs's "/".
func NewStore(fs billy.Filesystem, root string) *Store {
	return &Store{fs: fs, root: filepath.Clean(root)}
}

// Root returns the host path the store is bound to.
func (s *Store) Root() string { return s.root }

// fsPath converts a host path into the billy path for it.
func (s *Store) fsPath(op string, hostPath string) (string, error) {
	if strings.TrimSpace(hostPath) == "" {
		return "", newError(op, KindInvalidPath, hostPath, "path is required")
	}
	cleaned := filepath.Clean(hostPath)
	if !PathWithinDir(cleaned, s.root) {
		return "", newError(op, KindInvalidPath, hostPath, "path is outside the workspace")
	}
	rel, err := filepath.Rel(s.root, cleaned)
	if err != nil {
		return "", classify(op, hostPath, err)
	}
	if rel == "." {
		return "/", nil
	}
	return "/" + filepath.ToSlash(rel), nil
}

// lstat takes a billy path without its leading slash. The bound OS
// filesystem reads a rooted Lstat argument as a host path.
func (s *Store) lstat(fsPath string) (os.FileInfo, error) {
	return s.fs.Lstat(strings.TrimPrefix(fsPath, "/"))
}

func (s *Store) hostPath(fsPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(fsPath, "/")))
}

func checkContext(ctx context.Context, op string, hostPath string) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: op, Kind: KindCanceled, Path: hostPath, Message: err.Error(), Err: err}
	}
	return nil
}

// ReadFile returns the full UTF-8 content of a regular file.
func (s *Store) ReadFile(ctx context.Context, hostPath string) (string, error) {
	const op = "read"
	if err := checkContext(ctx, op, hostPath); err != nil {
		return "", err
	}
	p, err := s.fsPath(op, hostPath)
	if err != nil {
		return "", err
	}
	info, err := s.fs.Stat(p)
	if err != nil {
		return "", classify(op, hostPath, err)
	}
	if info.IsDir() {
		return "", newError(op, KindIsDirectory, hostPath, "is a directory")
	}
	if info.Size() > MaxFileBytes {
		return "", newError(op, KindTooLarge, hostPath, fmt.Sprintf("file exceeds %d bytes", MaxFileBytes))
	}

	f, err := s.fs.Open(p)
	if err != nil {
		return "", classify(op, hostPath, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, MaxFileBytes+1))
	if err != nil {
		return "", classify(op, hostPath, err)
	}
	if int64(len(raw)) > MaxFileBytes {
		return "", newError(op, KindTooLarge, hostPath, fmt.Sprintf("file exceeds %d bytes", MaxFileBytes))
	}
	return string(raw), nil
}

// WriteFile replaces the content of a file through a temp file and rename
// in the same directory, so a failed write never leaves a truncated file.
func (s *Store) WriteFile(ctx context.Context, hostPath string, content string) (err error) {
	const op = "write"
	if err := checkContext(ctx, op, hostPath); err != nil {
		return err
	}
	p, err := s.fsPath(op, hostPath)
	if err != nil {
		return err
	}
	if p == "/" {
		return newError(op, KindIsDirectory, hostPath, "is a directory")
	}
	if info, statErr := s.fs.Stat(p); statErr == nil && info.IsDir() {
		return newError(op, KindIsDirectory, hostPath, "is a directory")
	}

	tmp, err := s.fs.TempFile(path.Dir(p), "."+path.Base(p)+".tmp.")
	if err != nil {
		return classify(op, hostPath, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmp != nil {
			if closeErr := tmp.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[WARN-FS] failed to close temp file", "path", tmpName, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := s.fs.Remove(tmpName); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[WARN-FS] failed to remove temp file", "path", tmpName, "error", removeErr)
			}
		}
	}()

	if _, err = io.WriteString(tmp, content); err != nil {
		return classify(op, hostPath, err)
	}
	err = tmp.Close()
	tmp = nil
	if err != nil {
		return classify(op, hostPath, err)
	}
	if err = s.fs.Rename(tmpName, p); err != nil {
		return classify(op, hostPath, err)
	}
	return nil
}

// ListDirectory returns the unsorted children of a directory. Symlinks are
// reported as directories when their target is one.
func (s *Store) ListDirectory(ctx context.Context, hostPath string) ([]Entry, error) {
	const op = "list"
	if err := checkContext(ctx, op, hostPath); err != nil {
		return nil, err
	}
	p, err := s.fsPath(op, hostPath)
	if err != nil {
		return nil, err
	}
	info, err := s.fs.Stat(p)
	if err != nil {
		return nil, classify(op, hostPath, err)
	}
	if !info.IsDir() {
		return nil, newError(op, KindNotDirectory, hostPath, "not a directory")
	}
	infos, err := s.fs.ReadDir(p)
	if err != nil {
		return nil, classify(op, hostPath, err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		child := path.Join(p, fi.Name())
		isDir := fi.IsDir()
		if fi.Mode()&os.ModeSymlink != 0 {
			if target, statErr := s.fs.Stat(child); statErr == nil {
				isDir = target.IsDir()
			}
		}
		entries = append(entries, Entry{
			Name:        fi.Name(),
			Path:        s.hostPath(child),
			IsDirectory: isDir,
		})
	}
	return entries, nil
}

// CreateDirectory creates a directory and any missing parents. It fails
// with KindAlreadyExists if anything already occupies the path.
func (s *Store) CreateDirectory(ctx context.Context, hostPath string) error {
	const op = "mkdir"
	if err := checkContext(ctx, op, hostPath); err != nil {
		return err
	}
	p, err := s.fsPath(op, hostPath)
	if err != nil {
		return err
	}
	if _, statErr := s.fs.Stat(p); statErr == nil {
		return newError(op, KindAlreadyExists, hostPath, "already exists")
	}
	if err := s.fs.MkdirAll(p, dirPerm); err != nil {
		return classify(op, hostPath, err)
	}
	return nil
}

// CreateFile creates a new file; it never overwrites an existing entry.
func (s *Store) CreateFile(ctx context.Context, hostPath string, initialContent string) error {
	const op = "create"
	if err := checkContext(ctx, op, hostPath); err != nil {
		return err
	}
	p, err := s.fsPath(op, hostPath)
	if err != nil {
		return err
	}
	if _, statErr := s.fs.Stat(p); statErr == nil {
		return newError(op, KindAlreadyExists, hostPath, "already exists")
	}
	f, err := s.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return classify(op, hostPath, err)
	}
	if _, err := io.WriteString(f, initialContent); err != nil {
		_ = f.Close()
		return classify(op, hostPath, err)
	}
	if err := f.Close(); err != nil {
		return classify(op, hostPath, err)
	}
	return nil
}

// Rename moves oldPath to newPath. The destination must not exist.
func (s *Store) Rename(ctx context.Context, oldPath string, newPath string) error {
	const op = "rename"
	if err := checkContext(ctx, op, oldPath); err != nil {
		return err
	}
	from, err := s.fsPath(op, oldPath)
	if err != nil {
		return err
	}
	to, err := s.fsPath(op, newPath)
	if err != nil {
		return err
	}
	if from == "/" {
		return newError(op, KindInvalidPath, oldPath, "cannot rename the workspace root")
	}
	if from == to {
		return nil
	}
	if _, err := s.lstat(from); err != nil {
		return classify(op, oldPath, err)
	}
	if _, statErr := s.lstat(to); statErr == nil {
		return newError(op, KindAlreadyExists, newPath, "already exists")
	}
	if err := s.fs.Rename(from, to); err != nil {
		return classify(op, oldPath, err)
	}
	return nil
}

// Delete removes a file, or a directory together with its contents.
func (s *Store) Delete(ctx context.Context, hostPath string, isDirectory bool) error {
	const op = "delete"
	if err := checkContext(ctx, op, hostPath); err != nil {
		return err
	}
	p, err := s.fsPath(op, hostPath)
	if err != nil {
		return err
	}
	if p == "/" {
		return newError(op, KindInvalidPath, hostPath, "cannot delete the workspace root")
	}
	info, err := s.lstat(p)
	if err != nil {
		return classify(op, hostPath, err)
	}
	if isDirectory && info.IsDir() {
		if err := util.RemoveAll(s.fs, p); err != nil {
			return classify(op, hostPath, err)
		}
		return nil
	}
	if info.IsDir() {
		return newError(op, KindIsDirectory, hostPath, "is a directory")
	}
	if err := s.fs.Remove(p); err != nil {
		return classify(op, hostPath, err)
	}
	return nil
}
