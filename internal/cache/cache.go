// Package cache wraps Redis for two optional, purely advisory concerns:
// redelivery dedup and per-user flush locking. Both are adapted from the
// teacher's RedisRepository (its token-suppression helpers), generalized
// to event ids and flush locks. A nil *Cache is valid and every method
// becomes a no-op, so the service runs without Redis configured.
package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache offers small Redis-backed helpers for event-id dedup and per-user
// flush locking. Neither is load-bearing for correctness: store_event is
// already idempotent by event_id, and a missed lock only risks a harmless
// double flush.
type Cache struct {
	client   *redis.Client
	dedupTTL time.Duration
	lockTTL  time.Duration
}

// New wraps an existing Redis client. Pass nil client to disable caching.
func New(client *redis.Client, dedupTTL, lockTTL time.Duration) *Cache {
	if dedupTTL <= 0 {
		dedupTTL = 24 * time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &Cache{client: client, dedupTTL: dedupTTL, lockTTL: lockTTL}
}

func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Cache) enabled() bool { return c != nil && c.client != nil }

// IsEventProcessed reports whether eventID was already marked processed,
// used as a fast pre-check before storing/delivering a redelivered
// message. Always returns false when caching is disabled, which only
// costs a redundant (but idempotent) store/delivery attempt.
func (c *Cache) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	if !c.enabled() {
		return false, nil
	}
	key := "notif:event:processed:" + eventID
	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

// MarkEventProcessed records eventID as handled for dedupTTL.
func (c *Cache) MarkEventProcessed(ctx context.Context, eventID string) error {
	if !c.enabled() {
		return nil
	}
	key := "notif:event:processed:" + eventID
	return c.client.SetEX(ctx, key, "1", c.dedupTTL).Err()
}

// AcquireFlushLock attempts to take an advisory per-user flush lock so two
// concurrent flush calls (e.g. an ad-hoc API call racing a scheduled
// flush) don't double-process the same user. Returns true if acquired.
func (c *Cache) AcquireFlushLock(ctx context.Context, userID string) (bool, error) {
	if !c.enabled() {
		return true, nil
	}
	key := "notif:flush:lock:" + userID
	ok, err := c.client.SetNX(ctx, key, "1", c.lockTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// ReleaseFlushLock releases the advisory lock early, once a flush for
// userID has finished.
func (c *Cache) ReleaseFlushLock(ctx context.Context, userID string) error {
	if !c.enabled() {
		return nil
	}
	key := "notif:flush:lock:" + userID
	return c.client.Del(ctx, key).Err()
}
