package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunLock provides cross-process mutual exclusion through SET NX with a TTL.
// The TTL bounds how long a crashed holder can block other processes.
type RunLock struct {
	client *redis.Client
}

// NewRunLock constructs a lock backed by the shared Redis client.
func NewRunLock(client *redis.Client) *RunLock {
	return &RunLock{client: client}
}

// Acquire attempts to take the lock, returning false when it is held.
func (l *RunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("platform/cache: acquire %s: %w", key, err)
	}
	return ok, nil
}

// Release drops the lock. Releasing an expired lock is a no-op.
func (l *RunLock) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("platform/cache: release %s: %w", key, err)
	}
	return nil
}
