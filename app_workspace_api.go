package main

import (
	"context"
	"log/slog"
	"strings"

	"mini-ide/internal/fileaccess"
	"mini-ide/internal/recent"
	"mini-ide/internal/scaffold"
	"mini-ide/internal/workspace"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

var scaffoldCreateFn = scaffold.Create

// operationContext is the context bound methods hand to the controller.
// It ends at shutdown so pending file operations are abandoned.
func (a *App) operationContext() context.Context {
	if a.workers != nil {
		return a.workers.Context()
	}
	return context.Background()
}

// dialogFolderPicker is the native folder dialog. An empty or blank
// selection means the user canceled.
type dialogFolderPicker struct{}

func (dialogFolderPicker) PickFolder(ctx context.Context) (fileaccess.PickResult, error) {
	dir, err := runtimeOpenDirectoryDialogFn(ctx, runtime.OpenDialogOptions{
		Title:                "Open Folder",
		CanCreateDirectories: true,
	})
	if err != nil {
		return fileaccess.PickResult{}, err
	}
	dir = strings.TrimSpace(dir)
	return fileaccess.PickResult{Canceled: dir == "", Path: dir}, nil
}

// PickFolder asks the user for a workspace root.
func (a *App) PickFolder() (fileaccess.PickResult, error) {
	ctx, err := a.requireRuntimeContext()
	if err != nil {
		return fileaccess.PickResult{}, err
	}
	return a.folderPicker.PickFolder(ctx)
}

// OpenFolder picks a folder and opens it as the workspace. It returns the
// opened root, or "" when the picker was canceled.
func (a *App) OpenFolder() (string, error) {
	picked, err := a.PickFolder()
	if err != nil || picked.Canceled {
		return "", err
	}
	if err := a.OpenWorkspace(picked.Path); err != nil {
		return "", err
	}
	return a.ctrl.Root(), nil
}

// OpenWorkspace replaces the current workspace with root. The previous
// workspace's expansion set is saved first. A root that does not exist
// leaves the current workspace open; a root that cannot be listed leaves
// no workspace open.
func (a *App) OpenWorkspace(root string) error {
	root = strings.TrimSpace(root)
	a.openMu.Lock()
	defer a.openMu.Unlock()

	bound, err := a.files.Bind(root)
	if err != nil {
		return a.reportError("openWorkspace", root, &workspace.Error{
			Kind:    workspace.KindWorkspaceUnreadable,
			Path:    root,
			Message: fileaccess.MessageOf(err),
			Err:     err,
		})
	}
	a.persistExpansion()
	a.stopWatcher()

	ctx := a.operationContext()
	if err := a.ctrl.OpenWorkspace(ctx, bound); err != nil {
		a.files.Unbind()
		a.updateWindowTitle("")
		return a.reportError("openWorkspace", bound, err)
	}

	cfg := a.getConfigSnapshot()
	if store, storeErr := a.requireRecent(); storeErr == nil {
		if err := store.Touch(ctx, bound); err != nil {
			slog.Warn("[WARN-WORKSPACE] recent list update failed", "root", bound, "error", err)
		}
		if cfg.Recent.RestoreExpansion {
			a.restoreExpansion(ctx, store, bound)
		}
	}
	if cfg.Explorer.Watch {
		a.startWatcher()
	}

	a.updateWindowTitle(bound)
	a.emitRuntimeEvent(eventWorkspaceOpened, workspaceOpenedEvent{WorkspaceID: a.ctrl.ID(), Root: bound})
	a.refreshApplicationMenu()
	return nil
}

func (a *App) restoreExpansion(ctx context.Context, store *recent.Store, root string) {
	paths, err := store.Expansion(ctx, root)
	if err != nil {
		slog.Warn("[WARN-WORKSPACE] saved expansion unreadable", "root", root, "error", err)
		return
	}
	if len(paths) == 0 {
		return
	}
	if err := a.ctrl.RestoreExpansion(ctx, paths); err != nil {
		slog.Debug("[DEBUG-WORKSPACE] expansion partially restored", "root", root, "error", err)
	}
}

// persistExpansion stores the open workspace's expansion set. Best effort.
func (a *App) persistExpansion() {
	root := a.ctrl.Root()
	if root == "" {
		return
	}
	store, err := a.requireRecent()
	if err != nil {
		return
	}
	if err := store.SaveExpansion(context.Background(), root, a.ctrl.ExpandedPaths()); err != nil {
		slog.Warn("[WARN-WORKSPACE] saving expansion failed", "root", root, "error", err)
	}
}

// CloseWorkspace closes the open workspace, discarding open documents.
func (a *App) CloseWorkspace() error {
	a.openMu.Lock()
	defer a.openMu.Unlock()

	root := a.ctrl.Root()
	if root == "" {
		return nil
	}
	a.persistExpansion()
	a.stopWatcher()
	a.ctrl.CloseWorkspace()
	a.files.Unbind()
	if a.wsHub != nil {
		a.wsHub.Forget()
	}
	a.updateWindowTitle("")
	a.emitRuntimeEvent(eventWorkspaceClosed, workspaceOpenedEvent{WorkspaceID: a.ctrl.ID(), Root: root})
	return nil
}

// GetTree returns the explorer projection.
func (a *App) GetTree() workspace.TreeView {
	return a.ctrl.TreeView()
}

// ExpandDirectory expands path, listing it when needed.
func (a *App) ExpandDirectory(path string) error {
	return a.reportError("expand", path, a.ctrl.Expand(a.operationContext(), path))
}

// CollapseDirectory collapses path. Its cached listing is kept.
func (a *App) CollapseDirectory(path string) error {
	return a.reportError("collapse", path, a.ctrl.Collapse(path))
}

// ToggleDirectory flips path between expanded and collapsed and reports
// whether it is now expanded.
func (a *App) ToggleDirectory(path string) (bool, error) {
	expanded, err := a.ctrl.Toggle(a.operationContext(), path)
	return expanded, a.reportError("toggle", path, err)
}

// RefreshExplorer re-lists the root and every expanded directory. Without
// a workspace it returns workspace.ErrNoWorkspace and emits nothing.
func (a *App) RefreshExplorer() error {
	if err := a.requireWorkspace(); err != nil {
		return err
	}
	return a.reportError("refresh", a.ctrl.Root(), a.ctrl.Refresh(a.operationContext()))
}

// RenameEntry renames path within its directory and returns the new path.
func (a *App) RenameEntry(path string, newName string) (string, error) {
	newPath, err := a.ctrl.Rename(a.operationContext(), path, newName)
	return newPath, a.reportError("rename", path, err)
}

// DeleteEntry deletes a file or a directory tree. Open documents under it
// are closed without saving; the page confirms beforehand.
func (a *App) DeleteEntry(path string, isDirectory bool) error {
	return a.reportError("delete", path, a.ctrl.Delete(a.operationContext(), path, isDirectory))
}

// CreateFile creates an empty file named name in parent and returns its path.
func (a *App) CreateFile(parent string, name string) (string, error) {
	path, err := a.ctrl.CreateEntry(a.operationContext(), parent, name, false)
	return path, a.reportError("createFile", parent, err)
}

// CreateFolder creates a directory named name in parent and returns its path.
func (a *App) CreateFolder(parent string, name string) (string, error) {
	path, err := a.ctrl.CreateEntry(a.operationContext(), parent, name, true)
	return path, a.reportError("createFolder", parent, err)
}

// GetRecentWorkspaces lists recently opened workspaces, newest first.
func (a *App) GetRecentWorkspaces() ([]recent.Workspace, error) {
	store, err := a.requireRecent()
	if err != nil {
		return []recent.Workspace{}, nil
	}
	return store.List(a.operationContext())
}

// CreateSampleWorkspace writes the sample tree to the temp directory and
// opens it.
func (a *App) CreateSampleWorkspace() (string, error) {
	dir, err := scaffoldCreateFn(scaffold.DefaultDir())
	if err != nil {
		slog.Warn("[WARN-WORKSPACE] sample workspace creation failed", "error", err)
		a.emitRuntimeEvent(eventWorkspaceError, workspaceErrorEvent{
			Op:      "createSampleWorkspace",
			Message: err.Error(),
		})
		return "", err
	}
	if err := a.OpenWorkspace(dir); err != nil {
		return "", err
	}
	return dir, nil
}
