package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Config describes the retry behavior for the storage layer's
// connectivity-smoothing retries (internal/store's withRetry): a bounded
// number of attempts against transient DB errors (e.g. dropped
// connections), never a delivery retry — that is the flush loop's job,
// not this package's.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFactor   float64

	// Retryable, if set, is consulted before each retry. Returning false
	// stops immediately instead of burning through MaxAttempts on an
	// error that another attempt cannot fix, e.g. gorm.ErrRecordNotFound
	// or a canceled request context (internal/store's
	// isRetryableStoreError). A nil Retryable retries every non-nil
	// error, matching the teacher's unconditional retry.
	Retryable func(error) bool
}

// Do executes fn and retries with exponential backoff until it succeeds, the
// context is cancelled, or cfg.Retryable rejects the error.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	if cfg.JitterFactor <= 0 {
		cfg.JitterFactor = 0.2
	}

	backoff := cfg.InitialBackoff
	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return errors.Join(err, ctxErr)
			}
		}

		if err = fn(); err == nil {
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			break
		}

		sleep := applyJitter(backoff, cfg.JitterFactor)
		if sleep > cfg.MaxBackoff {
			sleep = cfg.MaxBackoff
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}

		if backoff < cfg.MaxBackoff {
			backoff *= 2
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}
	return err
}

func applyJitter(duration time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return duration
	}
	delta := int64(float64(duration) * factor)
	return duration + time.Duration(rand.Int63n(2*delta)-delta)
}
