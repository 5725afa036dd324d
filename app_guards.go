package main

import (
	"context"
	"errors"

	"mini-ide/internal/recent"
	"mini-ide/internal/workspace"
)

func (a *App) requireWorkspace() error {
	if !a.ctrl.IsOpen() {
		return workspace.ErrNoWorkspace
	}
	return nil
}

func (a *App) requireRecent() (*recent.Store, error) {
	if a.recentStore == nil {
		return nil, errors.New("recent workspaces store is unavailable")
	}
	return a.recentStore, nil
}

func (a *App) requireRuntimeContext() (context.Context, error) {
	ctx := a.runtimeContext()
	if ctx == nil {
		return nil, errors.New("app context is not ready")
	}
	return ctx, nil
}
