// Package ratelimit provides the admission and accounting primitives used by
// the limits package.
//
// # Token Bucket
//
// TokenBucket holds fractional credits that refill continuously up to a
// capacity. Consume is all-or-nothing:
//
//	bucket := ratelimit.NewTokenBucket(72, 1.0, nil) // 72 capacity, 1 credit/sec
//	if bucket.Consume(1) {
//	    // admitted
//	}
//
// # Sliding Window
//
// SlidingWindow keeps an exact, time-ordered log of (timestamp, amount)
// pairs and sums the entries younger than its window:
//
//	window := ratelimit.NewSlidingWindow(time.Minute, nil)
//	window.Add(5000, time.Now())
//	used := window.Count()
//
// RedisWindow offers the same accounting on a Redis sorted set for
// deployments that run more than one process.
//
// # Time
//
// Every primitive reads time through a Clock. Tests use ManualClock to
// advance time without sleeping.
package ratelimit
