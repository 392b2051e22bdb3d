package dedup

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// atomicCounter is a simple goroutine-safe running total, used here only
// for the "records seen" figure the progress reporter consumes; the
// distinct count itself lives in shardset.Set, which already maintains its
// own atomic counter per the sharded-set design.
type atomicCounter struct {
	v atomic.Int64
}

func (c *atomicCounter) Add(delta int64) int64 { return c.v.Add(delta) }
func (c *atomicCounter) Load() int64           { return c.v.Load() }

func pageSize() int64 { return int64(unix.Getpagesize()) }

// ticker rate-limits calls into a user-supplied ProgressFunc so that many
// concurrent workers don't flood it; at most one report escapes per
// interval, and it never blocks the caller on contention.
type ticker struct {
	fn       ProgressFunc
	interval time.Duration
	mu       sync.Mutex
	last     time.Time
}

func newTicker(fn ProgressFunc, interval time.Duration) *ticker {
	return &ticker{fn: fn, interval: interval}
}

func (t *ticker) maybeReport(seen, distinct int64, elapsed float64) {
	if t.fn == nil {
		return
	}
	if !t.mu.TryLock() {
		return
	}
	now := time.Now()
	if now.Sub(t.last) < t.interval {
		t.mu.Unlock()
		return
	}
	t.last = now
	t.mu.Unlock()
	t.fn(seen, distinct, elapsed)
}
