package main

import (
	"embed"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"mini-ide/internal/config"
	"mini-ide/internal/ipc"
	"mini-ide/internal/singleinstance"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	launchWorkspace := launchWorkspaceArg(os.Args[1:])

	// Single-instance check before any Wails initialization.
	instanceLock, err := singleinstance.TryLock(singleinstance.DefaultName())
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		slog.Info("[DEBUG-SINGLE] another instance is already running, forwarding launch")
		if _, sendErr := ipc.Send("", forwardedLaunchRequest(launchWorkspace)); sendErr != nil {
			slog.Warn("[DEBUG-SINGLE] failed to signal existing instance", "error", sendErr)
		}
		return
	}
	if err != nil {
		// Lock creation failed for an unexpected reason. Continue without the guard.
		slog.Warn("[DEBUG-SINGLE] instance lock failed, proceeding without single-instance guard", "error", err)
	}
	if instanceLock != nil {
		defer func() {
			if releaseErr := instanceLock.Release(); releaseErr != nil {
				slog.Warn("[DEBUG-SINGLE] instance lock release failed", "error", releaseErr)
			}
		}()
	}

	app := NewApp()
	app.launchWorkspace = launchWorkspace
	cfg := app.loadConfig(config.DefaultPath())

	err = wails.Run(&options.App{
		Title:     windowTitle,
		Width:     cfg.Window.Width,
		Height:    cfg.Window.Height,
		MinWidth:  cfg.Window.MinWidth,
		MinHeight: cfg.Window.MinHeight,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 30, G: 30, B: 30, A: 1},
		Menu:             app.buildMenu(),
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind: []any{
			app,
		},
	})

	if err != nil {
		slog.Error("[DEBUG-SINGLE] wails run failed", "error", err)
	}
}

// launchWorkspaceArg returns the first positional argument as an absolute
// path, or "".
func launchWorkspaceArg(args []string) string {
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" || strings.HasPrefix(arg, "-") {
			continue
		}
		if abs, err := filepath.Abs(arg); err == nil {
			return abs
		}
		return arg
	}
	return ""
}

func forwardedLaunchRequest(workspace string) ipc.Request {
	if workspace == "" {
		return ipc.Request{Action: ipc.ActionActivate}
	}
	return ipc.Request{Action: ipc.ActionOpenWorkspace, Workspace: workspace}
}
