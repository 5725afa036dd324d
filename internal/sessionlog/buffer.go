package sessionlog

import (
	"sync"
	"time"
)

// Entry is one captured log record as shown in the log panel.
type Entry struct {
	// Seq increases by one per captured entry and never resets while the
	// process runs. The page deduplicates on it.
	Seq     uint64            `json:"seq"`
	Time    time.Time         `json:"ts"`
	Level   string            `json:"level"` // "error", "warn", "info", "debug"
	Message string            `json:"msg"`
	Source  string            `json:"source,omitempty"` // slog group
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// DefaultCapacity bounds the in-memory entry history.
const DefaultCapacity = 1000

// DefaultNotifyInterval is the minimum spacing between notify calls.
const DefaultNotifyInterval = 50 * time.Millisecond

// Buffer keeps the most recent entries in a fixed-capacity ring and pings
// a notify function, at most once per interval, when entries arrive.
// Pings carry no data: listeners call Snapshot, so a dropped ping loses
// nothing.
type Buffer struct {
	notify   func()
	interval time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	ring     []Entry
	head     int // index of the oldest entry
	count    int
	seq      uint64
	lastPing time.Time
}

// NewBuffer allocates a buffer. Non-positive capacity or interval select
// the defaults; notify may be nil.
func NewBuffer(capacity int, interval time.Duration, notify func()) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if interval <= 0 {
		interval = DefaultNotifyInterval
	}
	return &Buffer{
		notify:   notify,
		interval: interval,
		now:      time.Now,
		ring:     make([]Entry, capacity),
	}
}

// Add assigns the next sequence number to entry and stores it, evicting
// the oldest entry when full. It must not log through slog: Add is called
// from inside the TeeHandler.
func (b *Buffer) Add(entry Entry) uint64 {
	b.mu.Lock()
	b.seq++
	entry.Seq = b.seq
	capacity := len(b.ring)
	if b.count < capacity {
		b.ring[(b.head+b.count)%capacity] = entry
		b.count++
	} else {
		b.ring[b.head] = entry
		b.head = (b.head + 1) % capacity
	}
	ping := false
	now := b.now()
	if now.Sub(b.lastPing) >= b.interval {
		b.lastPing = now
		ping = true
	}
	b.mu.Unlock()

	if ping && b.notify != nil {
		b.notify()
	}
	return entry.Seq
}

// Snapshot returns the stored entries oldest first. The result is never nil.
func (b *Buffer) Snapshot() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, b.count)
	first := min(len(b.ring)-b.head, b.count)
	copy(out, b.ring[b.head:b.head+first])
	if rest := b.count - first; rest > 0 {
		copy(out[first:], b.ring[:rest])
	}
	return out
}

// Len returns the number of stored entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}
