package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"mini-ide/internal/config"
	"mini-ide/internal/sessionlog"
)

const logFileName = "mini-ide.log"

var openRotatingLogFn = func(path string, opts sessionlog.RotateOptions) (io.WriteCloser, error) {
	return sessionlog.OpenRotatingFile(path, opts)
}

// initLogging installs the process logger: JSON to the rotating file,
// text to stderr, Warn and above captured for the log panel. When the
// file cannot be opened logging continues on stderr only.
func (a *App) initLogging(cfg config.Config) {
	path := filepath.Join(config.DataDir(a.configPath), "logs", logFileName)
	var file io.Writer
	rotating, err := openRotatingLogFn(path, sessionlog.RotateOptions{
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		a.addPendingConfigLoadWarning("Failed to open log file. Logging to console only. Error: " + err.Error())
	} else {
		file = rotating
		a.logFile = rotating
	}

	slog.SetDefault(slog.New(sessionlog.NewProcessHandler(file, os.Stderr, cfg.Log.SlogLevel(), a.logBuffer)))
	slog.Info("[LOG] process logger ready", "file", path, "level", cfg.Log.SlogLevel().String())
}

func (a *App) closeLogging() {
	if a.logFile == nil {
		return
	}
	if err := a.logFile.Close(); err != nil {
		slog.Warn("[LOG] close log file failed", "error", err)
	}
	a.logFile = nil
}

// notifySessionLogUpdated pings the page that new entries are available.
func (a *App) notifySessionLogUpdated() {
	a.emitRuntimeEvent(eventSessionLogUpdated, nil)
}

// GetSessionErrorLog returns the warnings and errors captured this session,
// oldest first.
func (a *App) GetSessionErrorLog() []sessionlog.Entry {
	if a.logBuffer == nil {
		return []sessionlog.Entry{}
	}
	return a.logBuffer.Snapshot()
}
