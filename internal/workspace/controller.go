// Package workspace holds the workspace-scoped state of the IDE: the lazily
// loaded explorer tree and the set of open documents, kept consistent with
// file system mutations issued through a fileaccess.Collaborator.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"mini-ide/internal/fileaccess"
)

// Event names emitted by Controller.
const (
	EventTreeChanged    = "workspace:tree-changed"
	EventSessionChanged = "workspace:session-changed"
)

const statusReady = "Ready"

// EventEmitter receives change notifications. Controller never calls Emit
// while holding its own lock.
type EventEmitter interface {
	Emit(name string, payload any)
}

// EventEmitterFunc adapts a function into EventEmitter.
type EventEmitterFunc func(name string, payload any)

func (f EventEmitterFunc) Emit(name string, payload any) {
	f(name, payload)
}

// ChangeEvent is the payload of tree and session change events. Listeners
// fetch the projection they need; the event only says what moved.
type ChangeEvent struct {
	WorkspaceID string   `json:"workspaceId"`
	Root        string   `json:"root"`
	Reason      string   `json:"reason"`
	Paths       []string `json:"paths,omitempty"`
}

// TreeView is the explorer projection.
type TreeView struct {
	WorkspaceID  string `json:"workspaceId"`
	Root         string `json:"root"`
	RootName     string `json:"rootName"`
	RootExpanded bool   `json:"rootExpanded"`
	Nodes        []Node `json:"nodes"`
}

// SessionView is the tab bar and editor projection.
type SessionView struct {
	WorkspaceID    string        `json:"workspaceId"`
	Active         string        `json:"active"`
	ActiveDocument *DocumentView `json:"activeDocument,omitempty"`
	Tabs           []Tab         `json:"tabs"`
	Status         string        `json:"status"`
}

// Options configures a Controller.
type Options struct {
	Collaborator fileaccess.Collaborator
	// Emitter is optional.
	Emitter EventEmitter
	// Exclude holds doublestar patterns matched against the slash-separated
	// path relative to the workspace root. Matching entries are hidden.
	Exclude []string
}

// Controller owns one workspace: its Tree, its Session and the per-path
// in-flight request markers. All methods are safe for concurrent use.
// Collaborator calls run with the internal lock released, so a slow disk
// never blocks render or edits.
type Controller struct {
	id       string
	fs       fileaccess.Collaborator
	emitter  EventEmitter
	requests *requestTracker

	mu      sync.Mutex
	exclude []string
	tree    *Tree
	session *Session
	open    bool
	epoch   uint64
	status  string
}

// NewController builds a controller with no workspace open.
func NewController(opts Options) *Controller {
	if opts.Collaborator == nil {
		panic("workspace: Options.Collaborator is required")
	}
	return &Controller{
		id:       uuid.NewString(),
		fs:       opts.Collaborator,
		emitter:  opts.Emitter,
		exclude:  validExcludes(opts.Exclude),
		requests: newRequestTracker(),
		tree:     NewTree(""),
		session:  NewSession(),
		status:   statusReady,
	}
}

func validExcludes(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			slog.Warn("[WARN-WORKSPACE] ignoring invalid exclude pattern", "pattern", pattern)
			continue
		}
		out = append(out, pattern)
	}
	return out
}

// SetExclude replaces the exclude patterns. Cached listings keep their
// entries until they are listed again; call Refresh to apply everywhere.
func (c *Controller) SetExclude(patterns []string) {
	valid := validExcludes(patterns)
	c.mu.Lock()
	c.exclude = valid
	c.mu.Unlock()
}

// ID identifies this controller instance in events and logs.
func (c *Controller) ID() string { return c.id }

// Root returns the workspace root, or "" when none is open.
func (c *Controller) Root() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ""
	}
	return c.tree.Root()
}

// IsOpen reports whether a workspace is open.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Status returns the last status line message.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// OpenWorkspace resets all state, expands root and lists it. On failure the
// controller is left with no workspace open.
func (c *Controller) OpenWorkspace(ctx context.Context, root string) error {
	if strings.TrimSpace(root) == "" {
		return newError(KindWorkspaceUnreadable, root, "workspace root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return &Error{Kind: KindWorkspaceUnreadable, Path: root, Message: err.Error(), Err: err}
	}

	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.open = false
	c.tree.Reset(abs)
	c.session.reset()
	c.mu.Unlock()

	_, fetchErr := c.fetchListing(ctx, abs)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		slog.Debug("[DEBUG-WORKSPACE] open superseded", "root", abs)
		return ErrSuperseded
	}
	if fetchErr == nil && !c.tree.HasListing(abs) {
		fetchErr = newError(KindWorkspaceUnreadable, abs, "listing was discarded")
	}
	if fetchErr != nil {
		c.tree.Reset("")
		c.status = "Error loading workspace"
		c.mu.Unlock()
		slog.Warn("[WARN-WORKSPACE] failed to open workspace", "root", abs, "error", fetchErr)
		c.emitTree("open-failed", abs)
		return asKind(KindWorkspaceUnreadable, abs, fetchErr)
	}
	c.open = true
	c.status = "Opened: " + filepath.Base(abs)
	c.mu.Unlock()

	slog.Info("[WORKSPACE] opened", "root", abs, "workspaceId", c.id)
	c.emitTree("open", abs)
	c.emitSession("open")
	return nil
}

// CloseWorkspace tears the workspace down and returns the expansion set it
// had, so the caller can persist it.
func (c *Controller) CloseWorkspace() []string {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	root := c.tree.Root()
	expanded := c.tree.ExpandedPaths()
	c.epoch++
	c.open = false
	c.tree.Reset("")
	c.session.reset()
	c.status = statusReady
	c.mu.Unlock()

	slog.Info("[WORKSPACE] closed", "root", root, "workspaceId", c.id)
	c.emitTree("close", root)
	c.emitSession("close")
	return expanded
}

// Expand adds path to the expansion set and lists it when it has no
// cached listing. When the listing fails the path is collapsed again.
// Already expanded descendants without a listing are fetched as well.
func (c *Controller) Expand(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	c.mu.Lock()
	if err := c.checkPathLocked(KindDirectoryUnreadable, path); err != nil {
		c.mu.Unlock()
		return err
	}
	needsFetch := c.tree.Expand(path)
	c.mu.Unlock()
	c.emitTree("expand", path)

	if needsFetch {
		if _, err := c.fetchListing(ctx, path); err != nil {
			c.mu.Lock()
			if path != c.tree.Root() && !c.tree.HasListing(path) {
				c.tree.Collapse(path)
			}
			c.mu.Unlock()
			slog.Warn("[WARN-WORKSPACE] expand failed", "path", path, "error", err)
			c.emitTree("expand-failed", path)
			return err
		}
	}
	if err := c.Sync(ctx); err != nil {
		slog.Warn("[WARN-WORKSPACE] failed to list expanded descendants", "path", path, "error", err)
	}
	return nil
}

// Collapse removes path from the expansion set and keeps its listing.
func (c *Controller) Collapse(path string) error {
	path = filepath.Clean(path)
	c.mu.Lock()
	if err := c.checkPathLocked(KindDirectoryUnreadable, path); err != nil {
		c.mu.Unlock()
		return err
	}
	c.tree.Collapse(path)
	c.mu.Unlock()
	c.emitTree("collapse", path)
	return nil
}

// Toggle expands a collapsed path or collapses an expanded one and reports
// the resulting state.
func (c *Controller) Toggle(ctx context.Context, path string) (bool, error) {
	path = filepath.Clean(path)
	c.mu.Lock()
	if err := c.checkPathLocked(KindDirectoryUnreadable, path); err != nil {
		c.mu.Unlock()
		return false, err
	}
	expanded := c.tree.IsExpanded(path)
	c.mu.Unlock()

	if expanded {
		return false, c.Collapse(path)
	}
	if err := c.Expand(ctx, path); err != nil {
		return false, err
	}
	return true, nil
}

// Invalidate drops the cached listing of path. The expansion set is not
// touched; call Sync to list it again when it is visible.
func (c *Controller) Invalidate(path string) {
	path = filepath.Clean(path)
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return
	}
	c.tree.Invalidate(path)
	c.mu.Unlock()
	c.emitTree("invalidate", path)
}

// Sync lists every visible expanded directory that has no listing yet,
// repeating until nothing new becomes visible. Distinct directories are
// listed concurrently. Each directory is attempted at most once per call.
func (c *Controller) Sync(ctx context.Context) error {
	attempted := make(map[string]struct{})
	var (
		errsMu sync.Mutex
		errs   []error
	)
	for {
		c.mu.Lock()
		if c.tree.Root() == "" {
			c.mu.Unlock()
			return errors.Join(errs...)
		}
		candidates := c.tree.unlisted()
		c.mu.Unlock()

		var todo []string
		for _, p := range candidates {
			if _, seen := attempted[p]; !seen {
				attempted[p] = struct{}{}
				todo = append(todo, p)
			}
		}
		if len(todo) == 0 {
			return errors.Join(errs...)
		}
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}

		var wg sync.WaitGroup
		for _, p := range todo {
			wg.Go(func() {
				if _, err := c.fetchListing(ctx, p); err != nil {
					errsMu.Lock()
					errs = append(errs, err)
					errsMu.Unlock()
				}
			})
		}
		wg.Wait()
	}
}

// Refresh forgets every cached listing, keeps the expansion set and lists
// the root and all visible expanded directories again. Directories that
// can no longer be listed drop out of the expansion set.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrNoWorkspace
	}
	c.tree.ForgetListings()
	root := c.tree.Root()
	c.mu.Unlock()
	c.emitTree("refresh", root)

	err := c.Sync(ctx)

	c.mu.Lock()
	c.status = "Explorer refreshed"
	c.mu.Unlock()
	c.emitSession("refresh")
	return err
}

// HandleExternalChange invalidates directories reported as changed on disk
// and lists the visible ones again.
func (c *Controller) HandleExternalChange(ctx context.Context, dirs []string) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	root := c.tree.Root()
	var changed []string
	for _, dir := range dirs {
		dir = filepath.Clean(dir)
		if !fileaccess.PathWithinDir(dir, root) {
			continue
		}
		if c.tree.Listing(dir).Status == ListingIdle {
			continue
		}
		c.tree.Invalidate(dir)
		changed = append(changed, dir)
	}
	c.mu.Unlock()
	if len(changed) == 0 {
		return nil
	}
	slog.Debug("[DEBUG-WORKSPACE] external change", "dirs", changed)
	c.emitTree("external-change", changed...)
	return c.Sync(ctx)
}

// RestoreExpansion expands paths saved from an earlier session, parents
// first. Paths that cannot be listed are skipped.
func (c *Controller) RestoreExpansion(ctx context.Context, paths []string) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrNoWorkspace
	}
	root := c.tree.Root()
	for _, p := range paths {
		p = filepath.Clean(p)
		if p != root && fileaccess.PathWithinDir(p, root) {
			c.tree.Expand(p)
		}
	}
	c.mu.Unlock()

	err := c.Sync(ctx)
	c.emitTree("restore")
	return err
}

// fetchListing lists path under its request marker. It reports whether the
// result was applied; a nil error with false means the result went stale
// (workspace replaced, path invalidated or collapsed) and was discarded.
func (c *Controller) fetchListing(ctx context.Context, path string) (bool, error) {
	reqID, release, err := c.requests.acquire(ctx, "list", path)
	if err != nil {
		return false, &Error{Kind: KindDirectoryUnreadable, Path: path, Message: err.Error(), Err: err}
	}
	defer release()

	c.mu.Lock()
	if c.tree.Root() == "" {
		c.mu.Unlock()
		return false, ErrNoWorkspace
	}
	if c.tree.HasListing(path) {
		c.mu.Unlock()
		return false, nil
	}
	if !c.tree.tracked(path) {
		l := c.tree.Listing(path)
		c.mu.Unlock()
		if l.Status == ListingFailed {
			return false, wrapCollaboratorError(KindDirectoryUnreadable, path, l.Err)
		}
		return false, nil
	}
	tok := c.tree.beginFetch(path, reqID)
	root := c.tree.Root()
	c.mu.Unlock()

	entries, listErr := c.fs.ListDirectory(ctx, path)

	c.mu.Lock()
	var applied bool
	if listErr != nil {
		applied = c.tree.failFetch(tok, listErr)
	} else {
		applied = c.tree.completeFetch(tok, c.filterEntries(root, entries))
	}
	c.mu.Unlock()

	if !applied {
		slog.Debug("[DEBUG-WORKSPACE] discarded stale listing", "path", path, "requestId", reqID)
	} else {
		c.emitTree("listed", path)
	}
	if listErr != nil {
		return applied, wrapCollaboratorError(KindDirectoryUnreadable, path, listErr)
	}
	return applied, nil
}

func (c *Controller) filterEntries(root string, entries []fileaccess.Entry) []DirectoryEntry {
	out := make([]DirectoryEntry, 0, len(entries))
	for _, e := range entries {
		if c.excluded(root, e.Path) {
			continue
		}
		out = append(out, DirectoryEntry{Name: e.Name, Path: filepath.Clean(e.Path), IsDirectory: e.IsDirectory})
	}
	return out
}

func (c *Controller) excluded(root string, path string) bool {
	if len(c.exclude) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range c.exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// checkPathLocked verifies a workspace is open and path lies inside it.
func (c *Controller) checkPathLocked(kind ErrorKind, path string) error {
	if !c.open {
		return ErrNoWorkspace
	}
	if !fileaccess.PathWithinDir(path, c.tree.Root()) {
		return newError(kind, path, "path is outside the workspace")
	}
	return nil
}

// asKind re-labels a core error with kind, keeping path, message and cause.
func asKind(kind ErrorKind, path string, err error) *Error {
	var wsErr *Error
	if errors.As(err, &wsErr) {
		return &Error{Kind: kind, Path: path, Message: wsErr.Message, Err: wsErr.Err}
	}
	return &Error{Kind: kind, Path: path, Message: err.Error(), Err: err}
}

// RenderSequence returns the visible explorer rows.
func (c *Controller) RenderSequence() []Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil
	}
	return c.tree.RenderSequence()
}

// TreeView returns the explorer projection.
func (c *Controller) TreeView() TreeView {
	c.mu.Lock()
	defer c.mu.Unlock()
	view := TreeView{WorkspaceID: c.id, Nodes: []Node{}}
	if !c.open {
		return view
	}
	root := c.tree.Root()
	view.Root = root
	view.RootName = filepath.Base(root)
	view.RootExpanded = c.tree.IsExpanded(root)
	view.Nodes = c.tree.RenderSequence()
	return view
}

// Listing returns the listing state of one directory.
func (c *Controller) Listing(path string) Listing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree.Listing(filepath.Clean(path))
}

// ExpandedPaths returns the expansion set.
func (c *Controller) ExpandedPaths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil
	}
	return c.tree.ExpandedPaths()
}

// CachedDirectories returns every directory with a ready listing. These
// are the directories worth watching for on-disk changes.
func (c *Controller) CachedDirectories() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil
	}
	return c.tree.CachedPaths()
}

// InFlight reports whether path has a request in flight.
func (c *Controller) InFlight(path string) bool {
	return c.requests.busy(filepath.Clean(path))
}

func (c *Controller) emitTree(reason string, paths ...string) {
	c.emit(EventTreeChanged, reason, paths)
}

func (c *Controller) emitSession(reason string, paths ...string) {
	c.emit(EventSessionChanged, reason, paths)
}

func (c *Controller) emit(name string, reason string, paths []string) {
	if c.emitter == nil {
		return
	}
	c.mu.Lock()
	root := c.tree.Root()
	c.mu.Unlock()
	c.emitter.Emit(name, ChangeEvent{WorkspaceID: c.id, Root: root, Reason: reason, Paths: paths})
}

func (c *Controller) setStatus(format string, args ...any) {
	c.mu.Lock()
	c.status = fmt.Sprintf(format, args...)
	c.mu.Unlock()
}
