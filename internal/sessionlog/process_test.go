package sessionlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewProcessHandlerWritesBothAndCaptures(t *testing.T) {
	var file, console bytes.Buffer
	buf := NewBuffer(10, time.Hour, nil)
	logger := slog.New(NewProcessHandler(&file, &console, slog.LevelInfo, buf))

	logger.Debug("hidden")
	logger.Info("[workspace] opened", "root", "/w")
	logger.Warn("[workspace] expand failed", "path", "/w/src")

	lines := strings.Split(strings.TrimSpace(file.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("file lines = %d, want 2: %q", len(lines), file.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("file line is not JSON: %v", err)
	}
	if rec["msg"] != "[workspace] expand failed" || rec["path"] != "/w/src" {
		t.Fatalf("file record = %v", rec)
	}
	if !strings.Contains(console.String(), "level=INFO") || strings.Contains(console.String(), "hidden") {
		t.Fatalf("console output = %q", console.String())
	}

	entries := buf.Snapshot()
	if len(entries) != 1 || entries[0].Message != "[workspace] expand failed" || entries[0].Attrs["path"] != "/w/src" {
		t.Fatalf("captured entries = %+v", entries)
	}
}

func TestNewProcessHandlerWithoutWriters(t *testing.T) {
	h := NewProcessHandler(nil, nil, slog.LevelInfo, nil)
	if h.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("Enabled() = true with no writers")
	}
	if err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelError, "x", 0)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
}

func TestFanoutHandlerRespectsChildLevels(t *testing.T) {
	var warnOnly, all bytes.Buffer
	h := NewFanoutHandler(
		slog.NewTextHandler(&warnOnly, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewTextHandler(&all, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	logger := slog.New(h).WithGroup("watch").With("dir", "/w")
	logger.Debug("tick")
	logger.Warn("lost")

	if strings.Contains(warnOnly.String(), "tick") || !strings.Contains(warnOnly.String(), "lost") {
		t.Fatalf("warn handler output = %q", warnOnly.String())
	}
	if !strings.Contains(all.String(), "tick") || !strings.Contains(all.String(), "watch.dir=/w") {
		t.Fatalf("debug handler output = %q", all.String())
	}
}

func TestFanoutHandlerJoinsErrors(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	h := NewFanoutHandler(&errorHandler{err: errA}, &errorHandler{err: errB})
	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "x", 0))
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("Handle() error = %v, want both child errors", err)
	}
}

func TestOpenRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mini-ide.log")
	w, err := OpenRotatingFile(path, RotateOptions{MaxSizeMB: 1, MaxBackups: 2, MaxAgeDays: 3})
	if err != nil {
		t.Fatalf("OpenRotatingFile() error = %v", err)
	}
	if w.MaxSize != 1 || w.MaxBackups != 2 || w.MaxAge != 3 || !w.Compress {
		t.Fatalf("rotation settings = %+v", w)
	}
	if _, err := w.Write([]byte("line\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(raw) != "line\n" {
		t.Fatalf("file = %q, want line", raw)
	}

	if _, err := OpenRotatingFile(" ", RotateOptions{}); err == nil {
		t.Fatal("OpenRotatingFile(blank) error = nil")
	}
}
