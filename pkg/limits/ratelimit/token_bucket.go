package ratelimit

import (
	"math"
	"sync"
	"time"
)

// TokenBucket is a continuously refilling credit pool.
//
// Credits are fractional. The bucket starts full and refills at a constant
// rate up to its capacity; a consume either takes the whole amount or
// nothing.
//
// # Algorithm
//
//  1. Compute credits earned since the last refill (elapsed * rate)
//  2. Saturate at capacity
//  3. Subtract the requested amount only if enough credits exist
//
// Elapsed time is measured with the injected Clock. A clock that moved
// backwards earns nothing; no other skew correction is applied.
//
// # Thread Safety
//
// All methods take the bucket's own mutex, so refill and consume are one
// atomic step with respect to other callers of the same bucket.
type TokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64 // credits per second
	lastRefill time.Time
	clock      Clock
	mu         sync.Mutex
}

// BucketStatus is a point-in-time view of a TokenBucket.
type BucketStatus struct {
	CurrentTokens float64 `json:"current_tokens"`
	Capacity      float64 `json:"capacity"`
	FillRate      float64 `json:"fill_rate"`
	// Utilization is 1 - CurrentTokens/Capacity.
	Utilization float64 `json:"utilization"`
}

// NewTokenBucket creates a full bucket.
//
// A nil clock means SystemClock.
//
// Example:
//
//	// 60 requests per minute with 20% burst headroom
//	bucket := ratelimit.NewTokenBucket(72, 1.0, nil)
func NewTokenBucket(capacity, refillRate float64, clock Clock) *TokenBucket {
	clock = clockOrSystem(clock)
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: clock.Now(),
		clock:      clock,
	}
}

// Consume refills the bucket and takes amount credits if they are available.
// It reports whether the credits were taken. Negative and NaN amounts are
// refused.
func (tb *TokenBucket) Consume(amount float64) bool {
	if !(amount >= 0) {
		return false
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	if tb.tokens >= amount {
		tb.tokens -= amount
		return true
	}
	return false
}

// Refund returns credits previously taken by Consume. The bucket never
// exceeds its capacity.
func (tb *TokenBucket) Refund(amount float64) {
	if amount <= 0 {
		return
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	tb.tokens = math.Min(tb.capacity, tb.tokens+amount)
}

// Status refills the bucket and returns its current state.
func (tb *TokenBucket) Status() BucketStatus {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	util := 0.0
	if tb.capacity > 0 {
		util = 1 - tb.tokens/tb.capacity
	}
	return BucketStatus{
		CurrentTokens: tb.tokens,
		Capacity:      tb.capacity,
		FillRate:      tb.refillRate,
		Utilization:   util,
	}
}

// TimeUntil returns how long until amount credits will be available.
// It returns 0 if they are available now, and a negative duration if the
// bucket can never hold amount.
func (tb *TokenBucket) TimeUntil(amount float64) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	if tb.tokens >= amount {
		return 0
	}
	if amount > tb.capacity || tb.refillRate <= 0 {
		return -1
	}
	seconds := (amount - tb.tokens) / tb.refillRate
	return time.Duration(seconds * float64(time.Second))
}

// Reset refills the bucket to capacity.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = tb.clock.Now()
}

// refillLocked must be called with tb.mu held.
func (tb *TokenBucket) refillLocked() {
	now := tb.clock.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now
	if elapsed <= 0 {
		return
	}
	tb.tokens = math.Min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
}
