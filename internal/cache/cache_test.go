package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestDisabledCacheIsNoOp(t *testing.T) {
	c := New(nil, 0, 0)
	ctx := context.Background()

	processed, err := c.IsEventProcessed(ctx, "e1")
	if err != nil || processed {
		t.Fatalf("expected a nil client to report unprocessed, got (%v, %v)", processed, err)
	}

	if err := c.MarkEventProcessed(ctx, "e1"); err != nil {
		t.Fatalf("MarkEventProcessed on disabled cache should be a no-op, got %v", err)
	}

	acquired, err := c.AcquireFlushLock(ctx, "u1")
	if err != nil || !acquired {
		t.Fatalf("expected disabled cache to always grant the flush lock, got (%v, %v)", acquired, err)
	}

	if err := c.ReleaseFlushLock(ctx, "u1"); err != nil {
		t.Fatalf("ReleaseFlushLock on disabled cache should be a no-op, got %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close on disabled cache should be a no-op, got %v", err)
	}
}

func TestMarkAndIsEventProcessed(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	c := New(client, time.Hour, time.Minute)
	ctx := context.Background()

	processed, err := c.IsEventProcessed(ctx, "e1")
	if err != nil {
		t.Fatalf("IsEventProcessed error: %v", err)
	}
	if processed {
		t.Fatalf("expected e1 to be unprocessed before MarkEventProcessed")
	}

	if err := c.MarkEventProcessed(ctx, "e1"); err != nil {
		t.Fatalf("MarkEventProcessed error: %v", err)
	}

	processed, err = c.IsEventProcessed(ctx, "e1")
	if err != nil {
		t.Fatalf("IsEventProcessed error: %v", err)
	}
	if !processed {
		t.Fatalf("expected e1 to be reported processed after MarkEventProcessed")
	}

	other, err := c.IsEventProcessed(ctx, "e2")
	if err != nil {
		t.Fatalf("IsEventProcessed error: %v", err)
	}
	if other {
		t.Fatalf("expected a different event id to remain unprocessed")
	}
}

func TestMarkEventProcessedExpires(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	c := New(client, time.Minute, time.Minute)
	ctx := context.Background()

	if err := c.MarkEventProcessed(ctx, "e1"); err != nil {
		t.Fatalf("MarkEventProcessed error: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	processed, err := c.IsEventProcessed(ctx, "e1")
	if err != nil {
		t.Fatalf("IsEventProcessed error: %v", err)
	}
	if processed {
		t.Fatalf("expected e1's dedup key to have expired")
	}
}

func TestFlushLockMutualExclusion(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	c := New(client, time.Hour, time.Minute)
	ctx := context.Background()

	acquired, err := c.AcquireFlushLock(ctx, "u1")
	if err != nil || !acquired {
		t.Fatalf("expected first AcquireFlushLock to succeed, got (%v, %v)", acquired, err)
	}

	acquired, err = c.AcquireFlushLock(ctx, "u1")
	if err != nil {
		t.Fatalf("AcquireFlushLock error: %v", err)
	}
	if acquired {
		t.Fatalf("expected a concurrent AcquireFlushLock for the same user to be refused")
	}

	if err := c.ReleaseFlushLock(ctx, "u1"); err != nil {
		t.Fatalf("ReleaseFlushLock error: %v", err)
	}

	acquired, err = c.AcquireFlushLock(ctx, "u1")
	if err != nil || !acquired {
		t.Fatalf("expected AcquireFlushLock to succeed again after release, got (%v, %v)", acquired, err)
	}
}
