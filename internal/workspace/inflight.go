package workspace

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// inflight is one request holding one or more path markers.
type inflight struct {
	id   string
	op   string
	done chan struct{}
}

// requestTracker hands out per-path request markers. A caller that finds a
// path busy waits for the holder to finish (or for its own ctx to end)
// before trying again, so two requests never touch the same path at once.
// All paths of one request are claimed together, which rules out lock
// ordering deadlocks between multi-path operations such as rename.
type requestTracker struct {
	mu      sync.Mutex
	pending map[string]*inflight
}

func newRequestTracker() *requestTracker {
	return &requestTracker{pending: make(map[string]*inflight)}
}

// acquire blocks until every path is free, then marks them all with a new
// request. The returned release func must be called exactly once.
func (r *requestTracker) acquire(ctx context.Context, op string, paths ...string) (string, func(), error) {
	keys := slices.Compact(slices.Sorted(slices.Values(paths)))
	for {
		r.mu.Lock()
		var busy *inflight
		for _, key := range keys {
			if holder, ok := r.pending[key]; ok {
				busy = holder
				break
			}
		}
		if busy == nil {
			req := &inflight{id: uuid.NewString(), op: op, done: make(chan struct{})}
			for _, key := range keys {
				r.pending[key] = req
			}
			r.mu.Unlock()
			return req.id, r.releaseFunc(req, keys), nil
		}
		r.mu.Unlock()

		slog.Debug("[DEBUG-WORKSPACE] waiting for in-flight request",
			"op", op, "paths", keys, "holderOp", busy.op, "holderId", busy.id)
		select {
		case <-busy.done:
		case <-ctx.Done():
			return "", nil, ctx.Err()
		}
	}
}

func (r *requestTracker) releaseFunc(req *inflight, keys []string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			for _, key := range keys {
				if r.pending[key] == req {
					delete(r.pending, key)
				}
			}
			r.mu.Unlock()
			close(req.done)
		})
	}
}

// busy reports whether path currently has a request in flight.
func (r *requestTracker) busy(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[path]
	return ok
}

// count returns the number of paths with a request in flight.
func (r *requestTracker) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
