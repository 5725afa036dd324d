// Package fileaccess is the host file system boundary of the workspace core.
// Every call is a single blocking request/response; callers own concurrency.
package fileaccess

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Entry is one child of a listed directory.
type Entry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	IsDirectory bool   `json:"isDirectory"`
}

// Collaborator performs file system work on behalf of the workspace core.
// Implementations may block; they must honor ctx cancellation where the
// underlying host allows it.
type Collaborator interface {
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path string, content string) error
	ListDirectory(ctx context.Context, path string) ([]Entry, error)
	CreateDirectory(ctx context.Context, path string) error
	CreateFile(ctx context.Context, path string, initialContent string) error
	Rename(ctx context.Context, oldPath string, newPath string) error
	Delete(ctx context.Context, path string, isDirectory bool) error
}

// PickResult is the outcome of a folder picker dialog.
type PickResult struct {
	Canceled bool   `json:"canceled"`
	Path     string `json:"path"`
}

// FolderPicker asks the user for a workspace root.
type FolderPicker interface {
	PickFolder(ctx context.Context) (PickResult, error)
}

// ValidateName rejects names that cannot be a single path component.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("name is required")
	case name == "." || name == "..":
		return errors.New("name must not be . or ..")
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, os.PathSeparator):
		return errors.New("name must not contain path separators")
	case strings.ContainsRune(name, 0):
		return errors.New("name must not contain NUL")
	}
	return nil
}

// PathWithinDir reports whether path is dir itself or lies beneath it.
// Cross-volume paths on Windows are rejected because filepath.Rel returns
// an absolute path when roots differ.
func PathWithinDir(path string, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}
