package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, InitialBackoff: time.Millisecond}, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one call, got %d", calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	cfg := Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
	err := Do(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	cfg := Config{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
	err := Do(context.Background(), cfg, func() error {
		calls++
		return errors.New("permanent")
	})
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestDoRespectsRetryable(t *testing.T) {
	calls := 0
	sentinel := errors.New("not worth retrying")
	cfg := Config{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Retryable:      func(err error) bool { return !errors.Is(err, sentinel) },
	}
	err := Do(context.Background(), cfg, func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected the sentinel error to surface, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected Retryable to stop after the first attempt, got %d calls", calls)
	}
}

func TestDoStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, Config{MaxAttempts: 5, InitialBackoff: time.Millisecond}, func() error {
		calls++
		return errors.New("transient")
	})
	if err == nil {
		t.Fatalf("expected an error after context cancellation")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one call before the context check aborted retries, got %d", calls)
	}
}
