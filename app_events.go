package main

import (
	"context"
	"errors"
	"log/slog"

	"mini-ide/internal/fileaccess"
	"mini-ide/internal/workspace"
	"mini-ide/internal/wsserver"
)

// App-level event names. Tree and session change events come from
// workspace.Controller.
const (
	eventWorkspaceOpened   = "workspace:opened"
	eventWorkspaceClosed   = "workspace:closed"
	eventWorkspaceError    = "workspace:error"
	eventConfigUpdated     = "config:updated"
	eventConfigLoadFailed  = "config:load-failed"
	eventSessionLogUpdated = "app:session-log-updated"
)

// workspaceErrorEvent is the payload of workspace:error.
type workspaceErrorEvent struct {
	Op      string `json:"op"`
	Path    string `json:"path,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// workspaceOpenedEvent is the payload of workspace:opened and workspace:closed.
type workspaceOpenedEvent struct {
	WorkspaceID string `json:"workspaceId"`
	Root        string `json:"root"`
}

// emitRuntimeEvent emits via the app context and delegates to emitRuntimeEventWithContext.
func (a *App) emitRuntimeEvent(name string, payload any) {
	a.emitRuntimeEventWithContext(a.runtimeContext(), name, payload)
}

// emitRuntimeEventWithContext emits a runtime event only when ctx is non-nil.
// Prefer this helper for best-effort contexts that may not be initialized yet.
func (a *App) emitRuntimeEventWithContext(ctx context.Context, name string, payload any) {
	if ctx == nil {
		slog.Debug("[EVENT] runtime event dropped because app context is nil", "event", name)
		return
	}
	runtimeEventsEmitFn(ctx, name, payload)
}

// handleWorkspaceEvent receives controller change events. It forwards the
// event to the page, pushes the matching projection to the WebSocket hub
// and keeps the watcher on the directories that are cached.
func (a *App) handleWorkspaceEvent(name string, payload any) {
	a.emitRuntimeEvent(name, payload)

	switch name {
	case workspace.EventTreeChanged:
		a.publishProjection(wsserver.TopicTree, a.ctrl.TreeView())
		a.syncWatchedDirectories()
	case workspace.EventSessionChanged:
		a.publishProjection(wsserver.TopicTabs, a.ctrl.SessionView())
	default:
		slog.Debug("[EVENT] unhandled workspace event", "event", name)
	}
}

func (a *App) publishProjection(topic string, projection any) {
	if a.wsHub == nil {
		return
	}
	if err := a.wsHub.Publish(topic, projection); err != nil {
		slog.Warn("[WS] publish failed", "topic", topic, "error", err)
	}
}

// reportError logs err and emits workspace:error. It returns err so bound
// methods can end with "return a.reportError(...)".
func (a *App) reportError(op string, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, workspace.ErrSuperseded) {
		slog.Debug("[DEBUG-WORKSPACE] superseded request ignored", "op", op, "path", path)
		return err
	}
	event := workspaceErrorEvent{
		Op:      op,
		Path:    path,
		Kind:    string(workspace.KindOf(err)),
		Message: err.Error(),
	}
	var wsErr *workspace.Error
	if errors.As(err, &wsErr) {
		if wsErr.Path != "" {
			event.Path = wsErr.Path
		}
		if msg := fileaccess.MessageOf(wsErr.Err); msg != "" {
			event.Message = msg
		} else if wsErr.Message != "" {
			event.Message = wsErr.Message
		}
	}
	slog.Warn("[WARN-WORKSPACE] operation failed", "op", op, "path", event.Path, "kind", event.Kind, "error", err)
	a.emitRuntimeEvent(eventWorkspaceError, event)
	return err
}
