package workspace

import (
	"context"
	"log/slog"
	"path/filepath"
)

// Open makes path the active document. An already open document is only
// activated; its buffer is never replaced by disk content. Otherwise the
// file is read and, on success, added clean and activated. A failed read
// leaves the session untouched.
func (c *Controller) Open(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	c.mu.Lock()
	if err := c.checkPathLocked(KindReadError, path); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.session.activate(path) {
		c.status = "Opened: " + filepath.Base(path)
		c.mu.Unlock()
		c.emitSession("activate", path)
		return nil
	}
	epoch := c.epoch
	c.mu.Unlock()

	reqID, release, err := c.requests.acquire(ctx, "open", path)
	if err != nil {
		return &Error{Kind: KindReadError, Path: path, Message: err.Error(), Err: err}
	}
	defer release()

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if c.session.activate(path) {
		c.mu.Unlock()
		c.emitSession("activate", path)
		return nil
	}
	c.mu.Unlock()

	content, readErr := c.fs.ReadFile(ctx, path)

	c.mu.Lock()
	if readErr != nil {
		if c.epoch == epoch {
			c.status = "Error opening file"
		}
		c.mu.Unlock()
		slog.Warn("[WARN-WORKSPACE] open failed", "path", path, "error", readErr)
		c.emitSession("open-failed", path)
		return wrapCollaboratorError(KindReadError, path, readErr)
	}
	if c.epoch != epoch {
		c.mu.Unlock()
		slog.Debug("[DEBUG-WORKSPACE] discarded stale read", "path", path, "requestId", reqID)
		return ErrSuperseded
	}
	if !c.session.activate(path) {
		c.session.add(path, content)
	}
	c.status = "Opened: " + filepath.Base(path)
	c.mu.Unlock()

	c.emitSession("open", path)
	return nil
}

// Edit replaces the buffer of the active document. Editing anything but
// the active document is a caller bug: it is logged and rejected.
func (c *Controller) Edit(path string, text string) error {
	path = filepath.Clean(path)
	c.mu.Lock()
	active := c.session.Active()
	if active == "" {
		c.mu.Unlock()
		slog.Warn("[WARN-WORKSPACE] edit without active document", "path", path)
		return &Error{Kind: KindNoActiveDocument, Path: path, Message: "no active document"}
	}
	if active != path {
		c.mu.Unlock()
		slog.Warn("[WARN-WORKSPACE] edit of inactive document", "path", path, "active", active)
		return &Error{Kind: KindNoActiveDocument, Path: path, Message: "document is not the active document"}
	}
	d := c.session.get(path)
	wasDirty := d.dirty()
	d.currentText = text
	dirtyChanged := wasDirty != d.dirty()
	c.mu.Unlock()

	if dirtyChanged {
		c.emitSession("dirty", path)
	}
	return nil
}

// Save writes the current buffer of path, or of the active document when
// path is empty. On success the written text becomes the saved snapshot;
// on failure the buffer and the dirty flag stay as they were.
func (c *Controller) Save(ctx context.Context, path string) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrNoWorkspace
	}
	if path == "" {
		path = c.session.Active()
		if path == "" {
			c.mu.Unlock()
			return ErrNoActiveDocument
		}
	}
	path = filepath.Clean(path)
	if !c.session.Has(path) {
		c.mu.Unlock()
		return &Error{Kind: KindNotOpen, Path: path, Message: "document is not open"}
	}
	epoch := c.epoch
	c.mu.Unlock()

	reqID, release, err := c.requests.acquire(ctx, "save", path)
	if err != nil {
		return &Error{Kind: KindWriteError, Path: path, Message: err.Error(), Err: err}
	}
	defer release()

	c.mu.Lock()
	d := c.session.get(path)
	if c.epoch != epoch || d == nil {
		c.mu.Unlock()
		return &Error{Kind: KindNotOpen, Path: path, Message: "document was closed before it could be saved"}
	}
	text := d.currentText
	c.mu.Unlock()

	writeErr := c.fs.WriteFile(ctx, path, text)

	c.mu.Lock()
	if writeErr != nil {
		if c.epoch == epoch {
			c.status = "Error saving file"
		}
		c.mu.Unlock()
		slog.Warn("[WARN-WORKSPACE] save failed", "path", path, "error", writeErr)
		c.emitSession("save-failed", path)
		return wrapCollaboratorError(KindWriteError, path, writeErr)
	}
	if c.epoch != epoch || c.session.get(path) != d {
		c.mu.Unlock()
		slog.Debug("[DEBUG-WORKSPACE] discarded stale save result", "path", path, "requestId", reqID)
		return nil
	}
	d.savedText = text
	c.status = "Saved: " + filepath.Base(path)
	c.mu.Unlock()

	c.emitSession("save", path)
	return nil
}

// Close removes path from the session without any I/O. The save-or-discard
// decision for a dirty document belongs to the caller. Closing a document
// that is not open is a no-op and reports false.
func (c *Controller) Close(path string) bool {
	path = filepath.Clean(path)
	c.mu.Lock()
	if !c.session.remove(path) {
		c.mu.Unlock()
		return false
	}
	if c.session.Active() == "" {
		c.status = statusReady
	}
	c.mu.Unlock()

	c.emitSession("close", path)
	return true
}

// SwitchActive captures liveBuffer into the outgoing active document, then
// activates path. The capture happens only when path is open, so a
// rejected switch changes nothing.
func (c *Controller) SwitchActive(path string, liveBuffer string) error {
	path = filepath.Clean(path)
	c.mu.Lock()
	if !c.session.Has(path) {
		c.mu.Unlock()
		slog.Warn("[WARN-WORKSPACE] switch to document that is not open", "path", path)
		return &Error{Kind: KindNotOpen, Path: path, Message: "document is not open"}
	}
	if outgoing := c.session.get(c.session.Active()); outgoing != nil {
		outgoing.currentText = liveBuffer
	}
	c.session.activate(path)
	c.status = "Editing: " + filepath.Base(path)
	c.mu.Unlock()

	c.emitSession("switch", path)
	return nil
}

// Document returns a copy of one open document.
func (c *Controller) Document(path string) (DocumentView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Document(filepath.Clean(path))
}

// ActiveDocument returns the active document, if any.
func (c *Controller) ActiveDocument() (DocumentView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Document(c.session.Active())
}

// OpenPaths returns open document paths in tab order.
func (c *Controller) OpenPaths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Paths()
}

// Tabs returns the tab bar projection.
func (c *Controller) Tabs() []Tab {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Tabs()
}

// SessionView returns the tab bar and active editor projection.
func (c *Controller) SessionView() SessionView {
	c.mu.Lock()
	defer c.mu.Unlock()
	view := SessionView{
		WorkspaceID: c.id,
		Active:      c.session.Active(),
		Tabs:        c.session.Tabs(),
		Status:      c.status,
	}
	if doc, ok := c.session.Document(view.Active); ok {
		view.ActiveDocument = &doc
	}
	return view
}
