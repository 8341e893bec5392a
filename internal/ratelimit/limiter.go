package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Store is a counting-with-expiry capability. Implementations decide where
// counters live (process memory, redis, ...); the limiter only needs these
// two operations.
type Store interface {
	// Increment adds one to key, (re)arming its expiry to ttl when the key is
	// created, and returns the new count.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Count returns the current value of key, 0 when missing or expired.
	Count(ctx context.Context, key string) (int64, error)
}

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the wait until the current window rolls over.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.Before(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Limiter is a sliding-window counter: the previous fixed window's count is
// weighted by how much of it still overlaps the sliding window.
type Limiter struct {
	store  Store
	window time.Duration
	max    int
	now    func() time.Time
}

// NewLimiter builds a limiter allowing max hits per window per key.
func NewLimiter(store Store, window time.Duration, max int) *Limiter {
	return &Limiter{store: store, window: window, max: max, now: time.Now}
}

// Allow records a hit for key and reports whether it fits in the window.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	windowNanos := l.window.Nanoseconds()
	index := now.UnixNano() / windowNanos
	windowStart := time.Unix(0, index*windowNanos)

	current, err := l.store.Increment(ctx, bucketKey(key, index), 2*l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit increment: %w", err)
	}
	previous, err := l.store.Count(ctx, bucketKey(key, index-1))
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit lookup: %w", err)
	}

	overlap := 1 - float64(now.Sub(windowStart))/float64(l.window)
	estimate := float64(previous)*overlap + float64(current)
	used := int(math.Ceil(estimate))

	remaining := l.max - used
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   estimate <= float64(l.max),
		Limit:     l.max,
		Remaining: remaining,
		ResetAt:   windowStart.Add(l.window),
	}, nil
}

func bucketKey(key string, index int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", key, index)
}
