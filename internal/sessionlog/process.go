package sessionlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotateOptions sizes the rotating process log file.
type RotateOptions struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// OpenRotatingFile returns a size-rotated writer at path, creating the
// parent directory. Old files are compressed.
func OpenRotatingFile(path string, opts RotateOptions) (*lumberjack.Logger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sessionlog: log file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("sessionlog: create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}, nil
}

// NewProcessHandler builds the process handler chain: JSON records to file,
// text records to console, both at level, wrapped in a TeeHandler that
// captures Warn and above into buf. A nil writer is skipped.
func NewProcessHandler(file io.Writer, console io.Writer, level slog.Leveler, buf *Buffer) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	var handlers []slog.Handler
	if file != nil {
		handlers = append(handlers, slog.NewJSONHandler(file, opts))
	}
	if console != nil {
		handlers = append(handlers, slog.NewTextHandler(console, opts))
	}
	var callback EntryCallback
	if buf != nil {
		callback = func(entry Entry) { buf.Add(entry) }
	}
	return NewTeeHandler(NewFanoutHandler(handlers...), slog.LevelWarn, callback)
}

// FanoutHandler forwards every record to each child handler that is
// enabled for its level.
type FanoutHandler struct {
	handlers []slog.Handler
}

// NewFanoutHandler returns a handler over handlers. With none it discards.
func NewFanoutHandler(handlers ...slog.Handler) *FanoutHandler {
	return &FanoutHandler{handlers: handlers}
}

// Enabled reports whether any child accepts level.
func (h *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, child := range h.handlers {
		if child.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle passes a clone of record to every enabled child and joins their errors.
func (h *FanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, child := range h.handlers {
		if !child.Enabled(ctx, record.Level) {
			continue
		}
		if err := child.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	children := make([]slog.Handler, len(h.handlers))
	for i, child := range h.handlers {
		children[i] = child.WithAttrs(attrs)
	}
	return &FanoutHandler{handlers: children}
}

func (h *FanoutHandler) WithGroup(name string) slog.Handler {
	children := make([]slog.Handler, len(h.handlers))
	for i, child := range h.handlers {
		children[i] = child.WithGroup(name)
	}
	return &FanoutHandler{handlers: children}
}
