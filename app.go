package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"mini-ide/internal/config"
	"mini-ide/internal/fileaccess"
	"mini-ide/internal/ipc"
	"mini-ide/internal/recent"
	"mini-ide/internal/sessionlog"
	"mini-ide/internal/treewatch"
	"mini-ide/internal/workerutil"
	"mini-ide/internal/workspace"
	"mini-ide/internal/wsserver"
)

// App is the Wails-bound application service.
type App struct {
	// Runtime context lifecycle.
	ctx   context.Context
	ctxMu sync.RWMutex

	// Configuration state and startup warnings.
	// Lock ordering (outer -> inner):
	//   cfgSaveMu -> cfgMu
	//
	// Independent locks: do not assume ordering across these.
	//   ctxMu, startupWarnMu, watchMu, openMu
	//   workspace.Controller.mu, wsserver.Hub.mu
	cfgMu              sync.RWMutex
	cfgSaveMu          sync.Mutex
	configEventVersion atomic.Uint64
	cfg                config.Config
	configPath         string
	startupWarnMu      sync.Mutex
	configLoadWarnings []string

	// launchWorkspace is the folder passed on the command line. Read-only
	// after main() hands the App to Wails.
	launchWorkspace string

	// Workspace core. files is rebound on every OpenWorkspace; ctrl lives
	// as long as the App.
	files *fileaccess.Binder
	ctrl  *workspace.Controller

	// openMu serializes OpenWorkspace/CloseWorkspace so the binder, the
	// controller and the recent store agree on the current root.
	openMu sync.Mutex

	// recentStore is nil when the database could not be opened.
	recentStore *recent.Store

	// Backend services. Set once during startup; nil when they failed to start.
	ipcServer *ipc.Server
	wsHub     *wsserver.Hub

	// Explorer watcher, replaced per workspace. Guarded by watchMu.
	watchMu sync.Mutex
	watcher *treewatch.Watcher

	// Process log. logBuffer feeds GetSessionErrorLog.
	logBuffer *sessionlog.Buffer
	logFile   io.Closer

	// workers runs the watcher loop and external-change refreshes.
	workers      *workerutil.Group
	shuttingDown atomic.Bool

	folderPicker fileaccess.FolderPicker
}

// NewApp creates the app service.
func NewApp() *App {
	a := &App{
		cfg:          config.DefaultConfig(),
		files:        fileaccess.NewBinder(nil),
		folderPicker: dialogFolderPicker{},
	}
	a.logBuffer = sessionlog.NewBuffer(sessionlog.DefaultCapacity, sessionlog.DefaultNotifyInterval, a.notifySessionLogUpdated)
	a.ctrl = workspace.NewController(workspace.Options{
		Collaborator: a.files,
		Emitter:      workspace.EventEmitterFunc(a.handleWorkspaceEvent),
		Exclude:      a.cfg.Explorer.Exclude,
	})
	return a
}

// GetWebSocketURL returns the endpoint streaming tree and tab projections.
// Returns empty string if the WebSocket server is not available.
func (a *App) GetWebSocketURL() string {
	if a.wsHub == nil {
		slog.Debug("[WS] wsHub is nil, WebSocket URL unavailable")
		return ""
	}
	return a.wsHub.URL()
}
