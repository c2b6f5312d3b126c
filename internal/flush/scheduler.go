package flush

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs a flush across every user on a fixed interval, the
// convenience path for HOURLY/DAILY/WEEKLY subscriptions that never get
// an ad-hoc /flush call. Each pass is an ordinary Flush: every enabled
// subscription of a user with undelivered events is rendered and sent,
// whatever its aggregation_frequency, and the delivery outcome, not the
// time, drives the clear decision.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler returns a Scheduler that flushes every interval. A
// zero interval disables the scheduler's Run loop.
func NewScheduler(engine *Engine, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{engine: engine, interval: interval, logger: logger}
}

// Run blocks, flushing all users every interval, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := s.engine.Flush(ctx, "", false, false)
			if err != nil {
				s.logger.Error("scheduled flush failed", slog.Any("error", err))
				continue
			}
			s.logger.Info("scheduled flush finished",
				slog.String("correlation_id", report.CorrelationID),
				slog.Int("users_processed", report.UsersProcessed))
		}
	}
}
