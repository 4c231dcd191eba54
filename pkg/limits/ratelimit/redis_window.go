package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisWindow is a sliding-window Counter kept in a Redis sorted set.
//
// Each recorded amount is a member "<amount>:<uuid>" scored by its
// timestamp in microseconds. Total trims members older than the window
// and sums the remainder in one script call, so several processes that
// share the key observe the same total.
type RedisWindow struct {
	rdb    redis.UniversalClient
	key    string
	window time.Duration
	clock  Clock
}

// RedisWindowOption configures a RedisWindow.
type RedisWindowOption func(*RedisWindow)

// WithRedisClock sets the clock used for eviction. Defaults to SystemClock.
func WithRedisClock(c Clock) RedisWindowOption {
	return func(w *RedisWindow) { w.clock = clockOrSystem(c) }
}

// NewRedisWindow creates a window stored under key.
func NewRedisWindow(rdb redis.UniversalClient, key string, window time.Duration, opts ...RedisWindowOption) *RedisWindow {
	w := &RedisWindow{
		rdb:    rdb,
		key:    strings.Trim(key, ":"),
		window: window,
		clock:  SystemClock{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

var sumWindowScript = redis.NewScript(`
local key = KEYS[1]
local cutoff = ARGV[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. cutoff)
local members = redis.call('ZRANGE', key, 0, -1)
local total = 0
for _, m in ipairs(members) do
	local amount = string.match(m, '^(-?%d+):')
	if amount then
		total = total + tonumber(amount)
	end
end
return total
`)

// Record implements Counter.
func (w *RedisWindow) Record(ctx context.Context, amount int64, at time.Time) error {
	member := strconv.FormatInt(amount, 10) + ":" + uuid.NewString()

	pipe := w.rdb.TxPipeline()
	pipe.ZAdd(ctx, w.key, redis.Z{Score: float64(at.UnixMicro()), Member: member})
	// Keep the key a little longer than the window so late readers still see it.
	pipe.PExpire(ctx, w.key, w.window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis window %s: record: %w", w.key, err)
	}
	return nil
}

// Total implements Counter.
func (w *RedisWindow) Total(ctx context.Context) (int64, error) {
	cutoff := w.clock.Now().Add(-w.window).UnixMicro()
	total, err := sumWindowScript.Run(ctx, w.rdb, []string{w.key}, cutoff).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis window %s: total: %w", w.key, err)
	}
	return total, nil
}

// Window implements Counter.
func (w *RedisWindow) Window() time.Duration {
	return w.window
}

// Key returns the Redis key backing the window.
func (w *RedisWindow) Key() string {
	return w.key
}
