package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// LivenessCache tracks which delegates have heartbeated recently. A key that
// is still present means the delegate is alive; expiry is handled by the
// cache itself so the sweeper only has to check presence.
type LivenessCache interface {
	Touch(ctx context.Context, delegateID string) error
	Alive(ctx context.Context, delegateID string) (bool, error)
	Forget(ctx context.Context, delegateID string) error
}

const livenessKeyPrefix = "delegate:heartbeat:"

// RedisLivenessCache implements LivenessCache on Redis keys with TTL.
type RedisLivenessCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLivenessCache creates a RedisLivenessCache with the given key TTL.
func NewRedisLivenessCache(client *redis.Client, ttl time.Duration) *RedisLivenessCache {
	return &RedisLivenessCache{client: client, ttl: ttl}
}

// Touch refreshes the delegate's liveness key.
func (c *RedisLivenessCache) Touch(ctx context.Context, delegateID string) error {
	return c.client.Set(ctx, livenessKeyPrefix+delegateID, time.Now().UnixMilli(), c.ttl).Err()
}

// Alive reports whether the delegate's liveness key still exists.
func (c *RedisLivenessCache) Alive(ctx context.Context, delegateID string) (bool, error) {
	n, err := c.client.Exists(ctx, livenessKeyPrefix+delegateID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Forget drops the delegate's liveness key.
func (c *RedisLivenessCache) Forget(ctx context.Context, delegateID string) error {
	return c.client.Del(ctx, livenessKeyPrefix+delegateID).Err()
}

// MemoryLivenessCache is an in-process LivenessCache for tests and
// single-node runs.
type MemoryLivenessCache struct {
	mu       sync.Mutex
	deadline map[string]time.Time
	ttl      time.Duration
}

// NewMemoryLivenessCache creates a MemoryLivenessCache with the given TTL.
func NewMemoryLivenessCache(ttl time.Duration) *MemoryLivenessCache {
	return &MemoryLivenessCache{
		deadline: make(map[string]time.Time),
		ttl:      ttl,
	}
}

// Touch refreshes the delegate's expiry deadline.
func (c *MemoryLivenessCache) Touch(ctx context.Context, delegateID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline[delegateID] = time.Now().Add(c.ttl)
	return nil
}

// Alive reports whether the delegate's deadline has not passed yet.
func (c *MemoryLivenessCache) Alive(ctx context.Context, delegateID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline, ok := c.deadline[delegateID]
	if !ok {
		return false, nil
	}
	if time.Now().After(deadline) {
		delete(c.deadline, delegateID)
		return false, nil
	}
	return true, nil
}

// Forget drops the delegate's deadline.
func (c *MemoryLivenessCache) Forget(ctx context.Context, delegateID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.deadline, delegateID)
	return nil
}
