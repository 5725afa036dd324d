package workspace

import (
	"context"
	"log/slog"
	"path/filepath"

	"mini-ide/internal/fileaccess"
)

// Rename renames oldPath to newName within the same parent directory and
// returns the new path. Open documents at or under oldPath are re-keyed
// with their buffers intact; expansion entries move with them. On failure
// every piece of state stays keyed on oldPath.
func (c *Controller) Rename(ctx context.Context, oldPath string, newName string) (string, error) {
	oldPath = filepath.Clean(oldPath)
	if err := fileaccess.ValidateName(newName); err != nil {
		return "", newError(KindRenameError, oldPath, err.Error())
	}

	c.mu.Lock()
	if err := c.checkPathLocked(KindRenameError, oldPath); err != nil {
		c.mu.Unlock()
		return "", err
	}
	if oldPath == c.tree.Root() {
		c.mu.Unlock()
		return "", newError(KindRenameError, oldPath, "cannot rename the workspace root")
	}
	epoch := c.epoch
	c.mu.Unlock()

	parent := filepath.Dir(oldPath)
	newPath := filepath.Join(parent, newName)
	if newPath == oldPath {
		return newPath, nil
	}

	if err := c.withRequest(ctx, "rename", func() error {
		return c.fs.Rename(ctx, oldPath, newPath)
	}, oldPath, newPath); err != nil {
		slog.Warn("[WARN-WORKSPACE] rename failed", "path", oldPath, "newName", newName, "error", err)
		c.setStatus("Error renaming %s", filepath.Base(oldPath))
		c.emitSession("rename-failed", oldPath)
		return "", wrapCollaboratorError(KindRenameError, oldPath, err)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return newPath, nil
	}
	moved := c.session.rekeyUnder(oldPath, newPath)
	c.tree.movePrefix(oldPath, newPath)
	c.tree.Invalidate(parent)
	c.status = "Renamed: " + newName
	c.mu.Unlock()

	c.emitTree("rename", oldPath, newPath)
	c.emitSession("rename", moved...)
	if err := c.Sync(ctx); err != nil {
		slog.Warn("[WARN-WORKSPACE] failed to list after rename", "path", newPath, "error", err)
	}
	return newPath, nil
}

// Delete removes a file or a directory tree. Open documents at or under
// path are closed; prompting for their unsaved changes is the caller's job
// and must happen before Delete.
func (c *Controller) Delete(ctx context.Context, path string, isDirectory bool) error {
	path = filepath.Clean(path)
	c.mu.Lock()
	if err := c.checkPathLocked(KindDeleteError, path); err != nil {
		c.mu.Unlock()
		return err
	}
	if path == c.tree.Root() {
		c.mu.Unlock()
		return newError(KindDeleteError, path, "cannot delete the workspace root")
	}
	epoch := c.epoch
	c.mu.Unlock()

	if err := c.withRequest(ctx, "delete", func() error {
		return c.fs.Delete(ctx, path, isDirectory)
	}, path); err != nil {
		slog.Warn("[WARN-WORKSPACE] delete failed", "path", path, "error", err)
		c.setStatus("Error deleting %s", filepath.Base(path))
		c.emitSession("delete-failed", path)
		return wrapCollaboratorError(KindDeleteError, path, err)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil
	}
	var closed []string
	if isDirectory {
		closed = c.session.removeUnder(path)
		c.tree.dropPrefix(path)
	} else if c.session.remove(path) {
		closed = []string{path}
	}
	c.tree.Invalidate(filepath.Dir(path))
	c.status = "Deleted: " + filepath.Base(path)
	c.mu.Unlock()

	c.emitTree("delete", path)
	c.emitSession("delete", closed...)
	if err := c.Sync(ctx); err != nil {
		slog.Warn("[WARN-WORKSPACE] failed to list after delete", "path", path, "error", err)
	}
	return nil
}

// CreateEntry creates an empty file or a directory named name inside
// parentPath and returns its path. Name collisions surface as
// KindAlreadyExists.
func (c *Controller) CreateEntry(ctx context.Context, parentPath string, name string, isDirectory bool) (string, error) {
	parentPath = filepath.Clean(parentPath)
	what := "file"
	if isDirectory {
		what = "folder"
	}
	if err := fileaccess.ValidateName(name); err != nil {
		return "", newError(KindCreateError, filepath.Join(parentPath, name), err.Error())
	}
	path := filepath.Join(parentPath, name)

	c.mu.Lock()
	if err := c.checkPathLocked(KindCreateError, parentPath); err != nil {
		c.mu.Unlock()
		return "", err
	}
	epoch := c.epoch
	c.mu.Unlock()

	if err := c.withRequest(ctx, "create", func() error {
		if isDirectory {
			return c.fs.CreateDirectory(ctx, path)
		}
		return c.fs.CreateFile(ctx, path, "")
	}, path); err != nil {
		slog.Warn("[WARN-WORKSPACE] create failed", "path", path, "directory", isDirectory, "error", err)
		c.setStatus("Error creating %s", what)
		c.emitSession("create-failed", path)
		return "", wrapCollaboratorError(KindCreateError, path, err)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return path, nil
	}
	c.tree.Invalidate(parentPath)
	if isDirectory {
		c.status = "Created: " + name + "/"
	} else {
		c.status = "Created: " + name
	}
	c.mu.Unlock()

	c.emitTree("create", path)
	c.emitSession("create", path)
	if err := c.Sync(ctx); err != nil {
		slog.Warn("[WARN-WORKSPACE] failed to list after create", "path", path, "error", err)
	}
	return path, nil
}

// withRequest runs fn while holding the request markers of paths. The
// markers are released before fn's caller lists anything again.
func (c *Controller) withRequest(ctx context.Context, op string, fn func() error, paths ...string) error {
	reqID, release, err := c.requests.acquire(ctx, op, paths...)
	if err != nil {
		return err
	}
	defer release()
	slog.Debug("[DEBUG-WORKSPACE] request started", "op", op, "paths", paths, "requestId", reqID)
	return fn()
}
