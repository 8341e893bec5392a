package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
)

// RedisStore shares counters between instances through redis.
type RedisStore struct {
	pool *redis.Pool
}

// NewRedisStore dials rawURL lazily through a small connection pool.
func NewRedisStore(rawURL string) *RedisStore {
	return &RedisStore{pool: &redis.Pool{
		MaxIdle:     8,
		IdleTimeout: 4 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialURLContext(ctx, rawURL,
				redis.DialConnectTimeout(2*time.Second),
				redis.DialReadTimeout(time.Second),
				redis.DialWriteTimeout(time.Second),
			)
		},
	}}
}

// Increment implements Store.
func (r *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("redis connection: %w", err)
	}
	defer conn.Close()

	count, err := redis.Int64(conn.Do("INCR", key))
	if err != nil {
		return 0, fmt.Errorf("redis INCR %s: %w", key, err)
	}
	if count == 1 {
		if _, err := conn.Do("PEXPIRE", key, ttl.Milliseconds()); err != nil {
			return 0, fmt.Errorf("redis PEXPIRE %s: %w", key, err)
		}
	}
	return count, nil
}

// Count implements Store.
func (r *RedisStore) Count(ctx context.Context, key string) (int64, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("redis connection: %w", err)
	}
	defer conn.Close()

	count, err := redis.Int64(conn.Do("GET", key))
	if errors.Is(err, redis.ErrNil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis GET %s: %w", key, err)
	}
	return count, nil
}

// Close releases pooled connections.
func (r *RedisStore) Close() error {
	return r.pool.Close()
}
