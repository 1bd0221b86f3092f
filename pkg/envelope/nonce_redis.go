package envelope

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNonceTracker shares replay state across process instances through
// Redis. SET NX with a TTL gives the same first-writer-wins semantics as the
// in-memory tracker, with eviction handled by key expiry instead of a scan.
//
// Unlike the in-memory tracker this can fail on I/O, so Check returns an
// error alongside the freshness result; callers should fail closed on error.
type RedisNonceTracker struct {
	client *redis.Client
	window time.Duration
	prefix string
}

// NewRedisNonceTracker creates a tracker backed by the given Redis endpoint.
// A non-positive window selects DefaultNonceWindow.
func NewRedisNonceTracker(addr, password string, db int, window time.Duration) *RedisNonceTracker {
	if window <= 0 {
		window = DefaultNonceWindow
	}
	return &RedisNonceTracker{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		window: window,
		prefix: "atel:nonce:",
	}
}

// Check reports whether the nonce is fresh across every instance sharing
// this Redis database. A false result with nil error means replay.
func (t *RedisNonceTracker) Check(ctx context.Context, nonce string) (bool, error) {
	fresh, err := t.client.SetNX(ctx, t.prefix+nonce, 1, t.window).Result()
	if err != nil {
		return false, fmt.Errorf("redis nonce check: %w", err)
	}
	return fresh, nil
}

// Close releases the underlying Redis connection.
func (t *RedisNonceTracker) Close() error {
	return t.client.Close()
}
