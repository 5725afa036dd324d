package main

import (
	"context"
	"log/slog"
	"time"

	"mini-ide/internal/ipc"
)

// ipcOpenWaitTimeout bounds how long a forwarded open-workspace waits for
// the result before answering. The open keeps running after the answer.
const ipcOpenWaitTimeout = 5 * time.Second

// handleIPCRequest serves launches forwarded by a second instance.
func (a *App) handleIPCRequest(req ipc.Request) ipc.Response {
	slog.Info("[ipc] forwarded launch", "action", req.Action, "workspace", req.Workspace)
	switch req.Action {
	case ipc.ActionActivate:
		a.bringWindowToFront()
		return ipc.Response{OK: true}
	case ipc.ActionOpenWorkspace:
		a.bringWindowToFront()
		return a.openForwardedWorkspace(req.Workspace)
	default:
		return ipc.Response{Error: "unsupported action: " + req.Action}
	}
}

func (a *App) openForwardedWorkspace(root string) ipc.Response {
	if a.workers == nil {
		return ipc.Response{Error: "application is not ready"}
	}
	result := make(chan error, 1)
	started := a.workers.Go("ipc-open-workspace", func(context.Context) {
		result <- a.OpenWorkspace(root)
	})
	if !started {
		return ipc.Response{Error: "application is shutting down"}
	}

	var openErr error
	if !waitWithTimeout(func() { openErr = <-result }, ipcOpenWaitTimeout) {
		slog.Debug("[DEBUG-IPC] forwarded open still running", "workspace", root)
		return ipc.Response{OK: true}
	}
	if openErr != nil {
		return ipc.Response{Error: openErr.Error()}
	}
	return ipc.Response{OK: true}
}
