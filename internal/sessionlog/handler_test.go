package sessionlog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

// newTestCallback returns a callback that appends captured entries to a slice,
// and a function to retrieve the captured entries.
func newTestCallback() (EntryCallback, func() []Entry) {
	var mu sync.Mutex
	var entries []Entry

	cb := func(entry Entry) {
		mu.Lock()
		defer mu.Unlock()
		entries = append(entries, entry)
	}

	get := func() []Entry {
		mu.Lock()
		defer mu.Unlock()
		copied := make([]Entry, len(entries))
		copy(copied, entries)
		return copied
	}

	return cb, get
}

func TestTeeHandler_CapturesAtOrAboveMinLevel(t *testing.T) {
	tests := []struct {
		name      string
		level     slog.Level
		wantLevel string
		captured  bool
	}{
		{name: "error", level: slog.LevelError, wantLevel: "error", captured: true},
		{name: "warn", level: slog.LevelWarn, wantLevel: "warn", captured: true},
		{name: "above error", level: slog.LevelError + 4, wantLevel: "error", captured: true},
		{name: "info ignored", level: slog.LevelInfo, captured: false},
		{name: "debug ignored", level: slog.LevelDebug, captured: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, get := newTestCallback()
			h := NewTeeHandler(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}), slog.LevelWarn, cb)
			logger := slog.New(h)
			logger.Log(context.Background(), tt.level, "[workspace] expand failed")

			entries := get()
			if !tt.captured {
				if len(entries) != 0 {
					t.Fatalf("captured %d entries, want 0", len(entries))
				}
				return
			}
			if len(entries) != 1 {
				t.Fatalf("captured %d entries, want 1", len(entries))
			}
			if entries[0].Level != tt.wantLevel {
				t.Fatalf("Level = %q, want %q", entries[0].Level, tt.wantLevel)
			}
			if entries[0].Message != "[workspace] expand failed" {
				t.Fatalf("Message = %q", entries[0].Message)
			}
			if entries[0].Time.IsZero() {
				t.Fatal("Time is zero")
			}
		})
	}
}

func TestTeeHandler_DelegatesToBase(t *testing.T) {
	var buf bytes.Buffer
	cb, get := newTestCallback()
	h := NewTeeHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}), slog.LevelError, cb)
	logger := slog.New(h)

	logger.Info("info line", "path", "/w/a.txt")
	logger.Debug("debug line")

	out := buf.String()
	if !strings.Contains(out, "info line") || !strings.Contains(out, "path=/w/a.txt") {
		t.Fatalf("base output = %q, want info line with attrs", out)
	}
	if strings.Contains(out, "debug line") {
		t.Fatalf("base output = %q, debug should be filtered by base", out)
	}
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("Enabled(debug) = true, want base decision false")
	}
	if n := len(get()); n != 0 {
		t.Fatalf("captured %d entries, want 0", n)
	}
}

func TestTeeHandler_FlattensAttrsAndGroups(t *testing.T) {
	cb, get := newTestCallback()
	h := NewTeeHandler(slog.NewTextHandler(io.Discard, nil), slog.LevelWarn, cb)
	logger := slog.New(h).
		With("workspace", "w1").
		WithGroup("tree").
		With("root", "/w").
		WithGroup("fetch")

	logger.Warn("listing failed", "path", "/w/src", slog.Group("err", "kind", "DirectoryUnreadable"))

	entries := get()
	if len(entries) != 1 {
		t.Fatalf("captured %d entries, want 1", len(entries))
	}
	got := entries[0]
	if got.Source != "tree.fetch" {
		t.Fatalf("Source = %q, want tree.fetch", got.Source)
	}
	want := map[string]string{
		"workspace":           "w1",
		"tree.root":           "/w",
		"tree.fetch.path":     "/w/src",
		"tree.fetch.err.kind": "DirectoryUnreadable",
	}
	if len(got.Attrs) != len(want) {
		t.Fatalf("Attrs = %v, want %v", got.Attrs, want)
	}
	for k, v := range want {
		if got.Attrs[k] != v {
			t.Fatalf("Attrs[%q] = %q, want %q (all %v)", k, got.Attrs[k], v, got.Attrs)
		}
	}
}

func TestTeeHandler_NoAttrsLeavesMapNil(t *testing.T) {
	cb, get := newTestCallback()
	logger := slog.New(NewTeeHandler(slog.NewTextHandler(io.Discard, nil), slog.LevelWarn, cb))
	logger.Error("plain")
	if entries := get(); len(entries) != 1 || entries[0].Attrs != nil {
		t.Fatalf("entries = %+v, want one entry with nil Attrs", entries)
	}
}

func TestTeeHandler_WithGroupEmptyReturnsReceiver(t *testing.T) {
	h := NewTeeHandler(slog.NewTextHandler(io.Discard, nil), slog.LevelWarn, nil)
	if got := h.WithGroup(""); got != h {
		t.Fatal("WithGroup(\"\") should return receiver unchanged")
	}
	if got := h.WithAttrs(nil); got != h {
		t.Fatal("WithAttrs(nil) should return receiver unchanged")
	}
}

func TestTeeHandler_NilCallback(t *testing.T) {
	var buf bytes.Buffer
	h := NewTeeHandler(slog.NewTextHandler(&buf, nil), slog.LevelWarn, nil)
	if err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !strings.Contains(buf.String(), "boom") {
		t.Fatalf("base output = %q, want boom", buf.String())
	}
}

type errorHandler struct {
	err error
}

func (h *errorHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h *errorHandler) Handle(context.Context, slog.Record) error { return h.err }
func (h *errorHandler) WithAttrs([]slog.Attr) slog.Handler        { return h }
func (h *errorHandler) WithGroup(string) slog.Handler             { return h }

func TestTeeHandler_BaseHandlerErrorPropagatedAndCallbackCalled(t *testing.T) {
	baseErr := errors.New("disk full")
	cb, get := newTestCallback()
	h := NewTeeHandler(&errorHandler{err: baseErr}, slog.LevelWarn, cb)

	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelError, "save failed", 0))
	if !errors.Is(err, baseErr) {
		t.Fatalf("Handle() error = %v, want %v", err, baseErr)
	}
	if n := len(get()); n != 1 {
		t.Fatalf("captured %d entries, want 1", n)
	}
}

func TestTeeHandler_CallbackPanicWritesToStderr(t *testing.T) {
	origStderr := os.Stderr
	readPipe, writePipe, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() error = %v", err)
	}
	os.Stderr = writePipe
	t.Cleanup(func() {
		os.Stderr = origStderr
		_ = readPipe.Close()
		_ = writePipe.Close()
	})

	h := NewTeeHandler(slog.NewTextHandler(io.Discard, nil), slog.LevelInfo, func(Entry) {
		panic("stderr panic test")
	})
	if handleErr := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "test", 0)); handleErr != nil {
		t.Fatalf("Handle() error = %v, want nil", handleErr)
	}
	_ = writePipe.Close()

	stderrBytes, readErr := io.ReadAll(readPipe)
	if readErr != nil {
		t.Fatalf("io.ReadAll(stderr) error = %v", readErr)
	}
	if !strings.Contains(string(stderrBytes), "[session-log] callback panicked: stderr panic test") {
		t.Fatalf("stderr output = %q, want panic diagnostic prefix", string(stderrBytes))
	}
}

func TestLevelName(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug - 4, "debug"},
		{slog.LevelDebug, "debug"},
		{slog.LevelInfo, "info"},
		{slog.LevelInfo + 2, "info"},
		{slog.LevelWarn, "warn"},
		{slog.LevelError, "error"},
	}
	for _, tt := range tests {
		if got := levelName(tt.level); got != tt.want {
			t.Fatalf("levelName(%v) = %q, want %q", tt.level, got, tt.want)
		}
	}
}
