// Package workerutil runs background workers (the tree watcher, the
// projection stream) with panic recovery and restart backoff.
package workerutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

const (
	// defaultInitialBackoff is the delay before the first restart. It doubles
	// per consecutive panic up to defaultMaxBackoff.
	defaultInitialBackoff = 100 * time.Millisecond

	defaultMaxBackoff = 5 * time.Second

	// defaultMaxRetries bounds consecutive panics before the worker is given up.
	defaultMaxRetries = 10
)

// RecoveryOptions configures RunWithPanicRecovery. Zero-value numeric fields
// select the defaults; nil callbacks are skipped.
//
// MaxRetries counts consecutive panics. Set it to 1 to run once and call
// OnFatal on the first panic. When StableAfter is positive, a run that lasts
// at least that long before panicking resets the count and the backoff, so a
// long-lived worker that panics rarely is never given up on.
type RecoveryOptions struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxRetries     int
	StableAfter    time.Duration

	// OnPanic runs after each recovered panic, before the backoff wait.
	// attempt is 1-based within the current run of consecutive panics.
	OnPanic func(worker string, attempt int)

	// OnFatal runs once when MaxRetries consecutive panics were recovered.
	OnFatal func(worker string, maxRetries int)

	// IsShutdown stops the loop after a panic without restarting and
	// without calling OnPanic, whose targets may already be torn down.
	IsShutdown func() bool
}

// applyDefaults returns a copy of opts with zero-value fields replaced by
// defaults and MaxBackoff raised to InitialBackoff when smaller.
func (opts RecoveryOptions) applyDefaults() RecoveryOptions {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.StableAfter < 0 {
		opts.StableAfter = 0
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		slog.Warn("[DEBUG-PANIC] MaxBackoff < InitialBackoff is contradictory, using InitialBackoff as MaxBackoff",
			"initialBackoff", opts.InitialBackoff,
			"maxBackoff", opts.MaxBackoff,
		)
		opts.MaxBackoff = opts.InitialBackoff
	}
	return opts
}

// RunWithPanicRecovery launches fn in a goroutine tracked by wg and restarts
// it with exponential backoff whenever it panics. fn returning normally, or
// ctx ending, stops the loop.
func RunWithPanicRecovery(
	ctx context.Context,
	name string,
	wg *sync.WaitGroup,
	fn func(ctx context.Context),
	opts RecoveryOptions,
) {
	opts = opts.applyDefaults()
	wg.Go(func() {
		runRecoveryLoop(ctx, name, fn, opts, time.Now)
	})
}

// runOnce calls fn and reports whether it panicked.
func runOnce(ctx context.Context, name string, fn func(ctx context.Context)) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[DEBUG-PANIC] background goroutine recovered from panic",
				"worker", name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			panicked = true
		}
	}()
	fn(ctx)
	return false
}

func runRecoveryLoop(
	ctx context.Context,
	name string,
	fn func(ctx context.Context),
	opts RecoveryOptions,
	now func() time.Time,
) {
	restartDelay := opts.InitialBackoff
	attempt := 0

	for {
		started := now()
		if !runOnce(ctx, name, fn) || ctx.Err() != nil {
			return
		}
		if opts.IsShutdown != nil && opts.IsShutdown() {
			slog.Info("[DEBUG-PANIC] worker shutdown detected, stopping restart", "worker", name)
			return
		}

		if opts.StableAfter > 0 && now().Sub(started) >= opts.StableAfter {
			attempt = 0
			restartDelay = opts.InitialBackoff
		}
		attempt++

		slog.Warn("[DEBUG-PANIC] restarting worker after panic",
			"worker", name,
			"restartDelay", restartDelay,
			"attempt", attempt,
		)
		if opts.OnPanic != nil {
			opts.OnPanic(name, attempt)
		}
		if attempt >= opts.MaxRetries {
			break
		}

		restartTimer := time.NewTimer(restartDelay)
		select {
		case <-ctx.Done():
			restartTimer.Stop()
			return
		case <-restartTimer.C:
		}
		restartDelay = nextBackoff(restartDelay, opts.MaxBackoff)
	}

	slog.Error("[DEBUG-PANIC] worker exceeded max retries, giving up",
		"worker", name,
		"maxRetries", opts.MaxRetries,
	)
	if opts.OnFatal != nil {
		opts.OnFatal(name, opts.MaxRetries)
	}
}

// nextBackoff doubles current, capping at maxBackoff and guarding overflow.
func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	if current <= 0 {
		return defaultInitialBackoff
	}
	if current >= maxBackoff {
		return maxBackoff
	}
	next := current * 2
	if next > maxBackoff || next < current {
		return maxBackoff
	}
	return next
}

// Recover is deferred at the top of one-shot goroutines. It logs a panic
// with its stack and passes the value to onPanic when set.
//
//	go func() {
//		defer workerutil.Recover("ws-write", nil)
//		...
//	}()
func Recover(name string, onPanic func(value any)) {
	r := recover()
	if r == nil {
		return
	}
	slog.Error("[DEBUG-PANIC] goroutine recovered from panic",
		"worker", name,
		"panic", r,
		"stack", string(debug.Stack()),
	)
	if onPanic == nil {
		return
	}
	defer func() {
		if again := recover(); again != nil {
			fmt.Fprintf(os.Stderr, "[DEBUG-PANIC] onPanic for %s panicked: %v\n", name, again)
		}
	}()
	onPanic(r)
}
