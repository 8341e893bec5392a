package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func newTestLimiter(store Store, c *clock, window time.Duration, max int) *Limiter {
	l := NewLimiter(store, window, max)
	l.now = c.now
	return l
}

func TestLimiter_AllowsUpToMaxThenRejects(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	store := NewMemoryStore()
	store.now = c.now
	l := newTestLimiter(store, c, time.Minute, 3)

	for i := 0; i < 3; i++ {
		d, err := l.Allow(context.Background(), "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "hit %d", i+1)
		assert.Equal(t, 3-(i+1), d.Remaining)
	}

	d, err := l.Allow(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 3, d.Limit)

	other, err := l.Allow(context.Background(), "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are limited independently")
}

func TestLimiter_PreviousWindowIsWeighted(t *testing.T) {
	start := time.Unix(1_700_000_040, 0).Truncate(time.Minute)
	c := &clock{t: start}
	store := NewMemoryStore()
	store.now = c.now
	l := newTestLimiter(store, c, time.Minute, 4)

	for i := 0; i < 4; i++ {
		_, err := l.Allow(context.Background(), "k")
		require.NoError(t, err)
	}

	// 15s into the next window, 75% of the previous window still counts: 4*0.75 = 3.
	c.t = start.Add(time.Minute + 15*time.Second)
	d, err := l.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, err = l.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	// Two full windows later everything has expired.
	c.t = start.Add(3 * time.Minute)
	d, err = l.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.Remaining)
}

func TestDecision_RetryAfter(t *testing.T) {
	now := time.Unix(100, 0)
	d := Decision{ResetAt: now.Add(20 * time.Second)}
	assert.Equal(t, 20*time.Second, d.RetryAfter(now))
	assert.Equal(t, time.Duration(0), d.RetryAfter(now.Add(time.Minute)))
}

func TestMemoryStore_ExpiresKeys(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	store := NewMemoryStore()
	store.now = c.now

	n, err := store.Increment(context.Background(), "a", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.Increment(context.Background(), "a", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	c.t = c.t.Add(2 * time.Second)
	count, err := store.Count(context.Background(), "a")
	require.NoError(t, err)
	assert.Zero(t, count)

	n, err = store.Increment(context.Background(), "a", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisStore_IncrementAndCount(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore("redis://" + mr.Addr())
	defer store.Close()

	ctx := context.Background()
	n, err := store.Increment(ctx, "ratelimit:k:1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.Increment(ctx, "ratelimit:k:1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := store.Count(ctx, "ratelimit:k:1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	missing, err := store.Count(ctx, "ratelimit:k:0")
	require.NoError(t, err)
	assert.Zero(t, missing)

	mr.FastForward(2 * time.Minute)
	count, err = store.Count(ctx, "ratelimit:k:1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLimiter_WithRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore("redis://" + mr.Addr())
	defer store.Close()

	l := NewLimiter(store, time.Hour, 2)
	ctx := context.Background()

	d, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, err = l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, err = l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}
