package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"mini-ide/internal/config"
	"mini-ide/internal/ipc"
	"mini-ide/internal/recent"
	"mini-ide/internal/workerutil"
	"mini-ide/internal/wsserver"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

type appRuntimeLogger interface {
	Warningf(context.Context, string, ...any)
	Infof(context.Context, string, ...any)
	Errorf(context.Context, string, ...any)
}

type wailsRuntimeLogger struct{}

func formatRuntimeLogMessage(message string, args ...any) string {
	if len(args) == 0 {
		return message
	}
	return fmt.Sprintf(message, args...)
}

func (wailsRuntimeLogger) Warningf(ctx context.Context, message string, args ...any) {
	if ctx == nil {
		slog.Warn(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogWarningf(ctx, message, args...)
}

func (wailsRuntimeLogger) Infof(ctx context.Context, message string, args ...any) {
	if ctx == nil {
		slog.Info(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogInfof(ctx, message, args...)
}

func (wailsRuntimeLogger) Errorf(ctx context.Context, message string, args ...any) {
	if ctx == nil {
		slog.Error(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogErrorf(ctx, message, args...)
}

var (
	runtimeEventsEmitFn                                 = runtime.EventsEmit
	runtimeLogger                      appRuntimeLogger = wailsRuntimeLogger{}
	runtimeWindowShowFn                                 = runtime.WindowShow
	runtimeWindowUnminimiseFn                           = runtime.WindowUnminimise
	runtimeWindowSetAlwaysOnTopFn                       = runtime.WindowSetAlwaysOnTop
	runtimeWindowSetTitleFn                             = runtime.WindowSetTitle
	runtimeOpenDirectoryDialogFn                        = runtime.OpenDirectoryDialog
	runtimeMessageDialogFn                              = runtime.MessageDialog
	runtimeMenuSetApplicationMenuFn                     = runtime.MenuSetApplicationMenu
	runtimeMenuUpdateApplicationMenuFn                  = runtime.MenuUpdateApplicationMenu
	runtimeQuitFn                                       = runtime.Quit
	newIPCServerFn                                      = ipc.NewServer
	openRecentStoreFn                                   = recent.Open
)

const (
	shutdownWaitTimeout = 10 * time.Second
	windowTitle         = "Mini IDE"
)

func (a *App) addPendingConfigLoadWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	a.startupWarnMu.Lock()
	a.configLoadWarnings = append(a.configLoadWarnings, trimmed)
	a.startupWarnMu.Unlock()
}

func (a *App) consumePendingConfigLoadWarning() string {
	a.startupWarnMu.Lock()
	defer a.startupWarnMu.Unlock()
	if len(a.configLoadWarnings) == 0 {
		return ""
	}
	message := strings.Join(a.configLoadWarnings, "\n")
	a.configLoadWarnings = nil
	return message
}

// loadConfig reads the config file before the window exists, so main can
// size the window from it. Failures fall back to defaults and are reported
// once the page is up.
func (a *App) loadConfig(path string) config.Config {
	a.configPath = path
	for _, message := range config.ConsumeDefaultPathWarnings() {
		a.addPendingConfigLoadWarning(message)
	}

	cfg, err := config.EnsureFile(a.configPath)
	if err != nil {
		// Config load/parse failures are non-fatal.
		cfg = config.DefaultConfig()
		a.addPendingConfigLoadWarning(
			"Failed to load config file at startup. Running with defaults. Error: " + err.Error(),
		)
		slog.Warn("[WARN-CONFIG] failed to load config", "path", a.configPath, "error", err)
	}
	a.setConfigSnapshot(cfg)
	a.ctrl.SetExclude(cfg.Explorer.Exclude)
	return cfg
}

func (a *App) startup(ctx context.Context) {
	a.setRuntimeContext(ctx)
	if a.configPath == "" {
		a.loadConfig(config.DefaultPath())
	}
	cfg := a.getConfigSnapshot()
	a.initLogging(cfg)

	a.workers = workerutil.NewGroup(ctx, workerutil.RecoveryOptions{
		OnFatal: func(worker string, maxRetries int) {
			runtimeLogger.Errorf(a.runtimeContext(), "worker %s stopped after %d panics", worker, maxRetries)
		},
	})

	dbPath := filepath.Join(config.DataDir(a.configPath), recent.DatabaseName)
	if store, err := openRecentStoreFn(dbPath, cfg.Recent.MaxEntries); err != nil {
		a.addPendingConfigLoadWarning(
			"Failed to open recent workspaces database. Recent list is unavailable. Error: " + err.Error(),
		)
		runtimeLogger.Warningf(ctx, "recent store open failed: %v", err)
	} else {
		a.recentStore = store
	}

	hub := wsserver.NewHub(wsserver.HubOptions{
		Addr: fmt.Sprintf("127.0.0.1:%d", cfg.WebSocketPort),
	})
	if err := hub.Start(ctx); err != nil {
		runtimeLogger.Errorf(ctx, "websocket server failed: %v", err)
		a.addPendingConfigLoadWarning(
			"Failed to start WebSocket server. Live explorer updates fall back to events. Error: " + err.Error(),
		)
	} else {
		a.wsHub = hub
	}

	a.ipcServer = newIPCServerFn(ipc.DefaultAddress(), ipc.HandlerFunc(a.handleIPCRequest))
	if err := a.ipcServer.Start(); err != nil {
		runtimeLogger.Errorf(ctx, "ipc server failed: %v", err)
		a.ipcServer = nil
	} else {
		runtimeLogger.Infof(ctx, "ipc server listening: %s", a.ipcServer.Address())
	}

	a.refreshApplicationMenu()

	if root := a.initialWorkspace(cfg); root != "" {
		a.workers.Go("open-initial-workspace", func(context.Context) {
			if err := a.OpenWorkspace(root); err != nil {
				slog.Warn("[WARN-WORKSPACE] initial workspace not opened", "root", root, "error", err)
			}
		})
	}
	// Warnings wait for GetConfigAndFlushWarnings: the page has not
	// registered its event handlers yet.
}

// initialWorkspace prefers the folder given on the command line over the
// configured default.
func (a *App) initialWorkspace(cfg config.Config) string {
	if root := strings.TrimSpace(a.launchWorkspace); root != "" {
		return root
	}
	return strings.TrimSpace(cfg.DefaultWorkspace)
}

func (a *App) shutdown(_ context.Context) {
	logCtx := a.runtimeContext()
	a.shuttingDown.Store(true)

	a.persistExpansion()
	a.stopWatcher()
	if a.workers != nil && !a.workers.Stop(shutdownWaitTimeout) {
		runtimeLogger.Warningf(logCtx, "timed out waiting for background workers during shutdown")
	}

	if a.ipcServer != nil {
		if err := a.ipcServer.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "ipc server stop failed: %v", err)
		}
	}
	if a.wsHub != nil {
		if err := a.wsHub.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "websocket server stop failed: %v", err)
		}
	}
	if a.recentStore != nil {
		if err := a.recentStore.Close(); err != nil {
			runtimeLogger.Warningf(logCtx, "recent store close failed: %v", err)
		}
	}
	a.closeLogging()
}

func waitWithTimeout(waitFn func(), timeout time.Duration) bool {
	// Best effort timeout guard for shutdown paths. The waiting goroutine may
	// outlive timeout when waitFn blocks indefinitely.
	done := make(chan struct{})
	go func() {
		waitFn()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// bringWindowToFront shows and raises the application window.
// Used when a second instance forwards its launch.
func (a *App) bringWindowToFront() {
	ctx := a.runtimeContext()
	if ctx == nil {
		slog.Warn("[DEBUG-IPC] bringWindowToFront dropped because runtime context is nil")
		return
	}
	a.raiseWindow(ctx)
}

func (a *App) raiseWindow(ctx context.Context) {
	runtimeWindowShowFn(ctx)
	runtimeWindowUnminimiseFn(ctx)
	runtimeWindowSetAlwaysOnTopFn(ctx, true)
	runtimeWindowSetAlwaysOnTopFn(ctx, false)
}

// updateWindowTitle shows the open workspace name in the title bar.
func (a *App) updateWindowTitle(root string) {
	ctx := a.runtimeContext()
	if ctx == nil {
		return
	}
	title := windowTitle
	if root != "" {
		title = filepath.Base(root) + " - " + windowTitle
	}
	runtimeWindowSetTitleFn(ctx, title)
}
