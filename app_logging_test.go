package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mini-ide/internal/config"
	"mini-ide/internal/sessionlog"
)

// NOTE: This file overrides package-level function variables
// (openRotatingLogFn, runtimeEventsEmitFn) and replaces slog.Default.
// Do not use t.Parallel() here.

func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })
}

func TestInitLoggingWritesRotatingFileAndCapturesWarnings(t *testing.T) {
	rec := captureRuntimeEvents(t)
	restoreDefaultLogger(t)

	app := NewApp()
	app.setRuntimeContext(context.Background())
	app.configPath = newConfigPathForAPITest(t, "config.yaml")
	app.initLogging(config.DefaultConfig())
	t.Cleanup(app.closeLogging)

	slog.Info("[LOG] info only goes to the file")
	slog.Warn("[WARN-WORKSPACE] captured warning", "path", "/w/a.txt")

	entries := app.GetSessionErrorLog()
	if len(entries) != 1 {
		t.Fatalf("session log entries = %+v, want only the warning", entries)
	}
	if entries[0].Level != "warn" || entries[0].Attrs["path"] != "/w/a.txt" {
		t.Fatalf("entry = %+v", entries[0])
	}
	waitForCondition(t, time.Second, func() bool { return rec.count(eventSessionLogUpdated) > 0 },
		"session log update was not signalled")

	app.closeLogging()
	raw, err := os.ReadFile(filepath.Join(config.DataDir(app.configPath), "logs", logFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, want := range []string{"process logger ready", "info only goes to the file", "captured warning"} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("log file = %q, want %q", raw, want)
		}
	}
}

func TestInitLoggingFallsBackToConsole(t *testing.T) {
	captureRuntimeEvents(t)
	restoreDefaultLogger(t)
	orig := openRotatingLogFn
	t.Cleanup(func() { openRotatingLogFn = orig })
	openRotatingLogFn = func(string, sessionlog.RotateOptions) (io.WriteCloser, error) {
		return nil, errors.New("read-only file system")
	}

	app := NewApp()
	app.configPath = newConfigPathForAPITest(t, "config.yaml")
	app.initLogging(config.DefaultConfig())

	if app.logFile != nil {
		t.Fatal("logFile set although the file could not be opened")
	}
	if warning := app.consumePendingConfigLoadWarning(); !strings.Contains(warning, "Failed to open log file.") {
		t.Fatalf("pending warning = %q, want log file failure", warning)
	}

	slog.Error("[LOG] still captured")
	if entries := app.GetSessionErrorLog(); len(entries) != 1 || entries[0].Level != "error" {
		t.Fatalf("session log entries = %+v, want the error", entries)
	}
	// closeLogging without a file is a no-op.
	app.closeLogging()
}

func TestGetSessionErrorLogNeverNil(t *testing.T) {
	app := NewApp()
	if entries := app.GetSessionErrorLog(); entries == nil || len(entries) != 0 {
		t.Fatalf("GetSessionErrorLog() = %#v, want empty non-nil slice", entries)
	}

	app.logBuffer = nil
	if entries := app.GetSessionErrorLog(); entries == nil {
		t.Fatal("GetSessionErrorLog() = nil without a buffer")
	}
}
