package workerutil

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Group owns a set of named recovering workers that share one lifetime.
// Stop cancels them all and waits, bounded by a timeout.
type Group struct {
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopping atomic.Bool
	defaults RecoveryOptions
}

// NewGroup derives the group's context from parent. defaults applies to
// every worker started with Go; its IsShutdown is replaced by the group's.
func NewGroup(parent context.Context, defaults RecoveryOptions) *Group {
	ctx, cancel := context.WithCancel(parent)
	return &Group{ctx: ctx, cancel: cancel, defaults: defaults}
}

// Context returns the group context. It ends when Stop is called.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Go starts fn under RunWithPanicRecovery. It reports false, and does not
// start fn, once Stop has been called.
func (g *Group) Go(name string, fn func(ctx context.Context)) bool {
	if g.stopping.Load() {
		slog.Debug("[DEBUG-WORKER] worker not started, group stopping", "worker", name)
		return false
	}
	opts := g.defaults
	opts.IsShutdown = g.stopping.Load
	RunWithPanicRecovery(g.ctx, name, &g.wg, fn, opts)
	return true
}

// Stop cancels every worker and waits up to timeout for them to return.
// It reports whether all workers finished in time. A non-positive timeout
// waits without bound.
func (g *Group) Stop(timeout time.Duration) bool {
	g.stopping.Store(true)
	g.cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		slog.Warn("[DEBUG-WORKER] workers did not stop before timeout", "timeout", timeout)
		return false
	}
}
