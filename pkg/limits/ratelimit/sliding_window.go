package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Counter is a windowed usage total.
//
// SlidingWindow satisfies it in memory; RedisWindow keeps the same log in a
// shared Redis sorted set so several processes see one total.
type Counter interface {
	// Record adds amount at the given time.
	Record(ctx context.Context, amount int64, at time.Time) error
	// Total returns the sum of amounts still inside the window.
	Total(ctx context.Context) (int64, error)
	// Window returns the window length.
	Window() time.Duration
}

// SlidingWindow is an exact sliding-window counter.
//
// Every recorded amount is kept with its timestamp in time order. Entries
// are evicted from the front once they are older than the window relative
// to the clock, so the retained entries always satisfy now-ts <= window.
//
// # Thread Safety
//
// SlidingWindow is safe for concurrent use; each call holds its mutex for
// the eviction and the update or sum.
type SlidingWindow struct {
	window  time.Duration
	entries []entry
	clock   Clock
	mu      sync.Mutex
}

type entry struct {
	at     time.Time
	amount int64
}

// NewSlidingWindow creates an empty window. A nil clock means SystemClock.
func NewSlidingWindow(window time.Duration, clock Clock) *SlidingWindow {
	return &SlidingWindow{
		window: window,
		clock:  clockOrSystem(clock),
	}
}

// Add records amount at time at.
//
// Timestamps normally arrive in order and are appended. An older timestamp
// is inserted at its ordered position so eviction from the front stays
// correct.
func (sw *SlidingWindow) Add(amount int64, at time.Time) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	n := len(sw.entries)
	if n == 0 || !at.Before(sw.entries[n-1].at) {
		sw.entries = append(sw.entries, entry{at: at, amount: amount})
	} else {
		i := sort.Search(n, func(i int) bool { return sw.entries[i].at.After(at) })
		sw.entries = append(sw.entries, entry{})
		copy(sw.entries[i+1:], sw.entries[i:])
		sw.entries[i] = entry{at: at, amount: amount}
	}
	sw.evictLocked()
}

// Count evicts expired entries and returns the sum of the rest.
func (sw *SlidingWindow) Count() int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.evictLocked()
	var total int64
	for _, e := range sw.entries {
		total += e.amount
	}
	return total
}

// Len returns the number of retained entries without evicting.
func (sw *SlidingWindow) Len() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return len(sw.entries)
}

// Reset drops every entry.
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.entries = nil
}

// Window returns the window length.
func (sw *SlidingWindow) Window() time.Duration {
	return sw.window
}

// Record implements Counter.
func (sw *SlidingWindow) Record(_ context.Context, amount int64, at time.Time) error {
	sw.Add(amount, at)
	return nil
}

// Total implements Counter.
func (sw *SlidingWindow) Total(_ context.Context) (int64, error) {
	return sw.Count(), nil
}

// evictLocked must be called with sw.mu held.
func (sw *SlidingWindow) evictLocked() {
	now := sw.clock.Now()
	i := 0
	for i < len(sw.entries) && now.Sub(sw.entries[i].at) > sw.window {
		i++
	}
	if i == 0 {
		return
	}
	if i == len(sw.entries) {
		sw.entries = sw.entries[:0]
		return
	}
	// Shift instead of reslicing so the backing array does not grow forever.
	n := copy(sw.entries, sw.entries[i:])
	sw.entries = sw.entries[:n]
}
