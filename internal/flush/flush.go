// Package flush implements the flush engine (C5): for each user with
// undelivered events, render and deliver a digest per subscription, then
// decide whether to clear the events that were just processed.
package flush

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CyberwizD/notification-delivery-service/internal/aggregate"
	"github.com/CyberwizD/notification-delivery-service/internal/cache"
	"github.com/CyberwizD/notification-delivery-service/internal/domain"
	"github.com/CyberwizD/notification-delivery-service/internal/providers"
	"github.com/CyberwizD/notification-delivery-service/internal/store"
	"github.com/CyberwizD/notification-delivery-service/pkg/metrics"
)

// Report aggregates the outcome of one flush call across every user
// processed.
type Report struct {
	UsersProcessed     int      `json:"users_processed"`
	MessagesDelivered  int      `json:"messages_delivered"`
	MessagesFailed     int      `json:"messages_failed"`
	EventsCleared      int      `json:"events_cleared"`
	Errors             []string `json:"errors"`
	DryRun             bool     `json:"dry_run"`
	CorrelationID      string   `json:"correlation_id"`
}

// Engine runs the §4.5 protocol.
type Engine struct {
	store   store.EventStore
	email   providers.Provider
	webhook providers.Provider
	cache   *cache.Cache
	metrics *metrics.Metrics
	logger  *slog.Logger

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// NewEngine wires the flush engine. cache may be nil.
func NewEngine(s store.EventStore, email, webhook providers.Provider, c *cache.Cache, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		store:   s,
		email:   email,
		webhook: webhook,
		cache:   c,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Flush runs the protocol for a single user (userID != "") or every user
// with at least one undelivered event (userID == "").
func (e *Engine) Flush(ctx context.Context, userID string, dryRun, forceDelivery bool) (*Report, error) {
	start := time.Now()
	correlationSubject := userID
	if correlationSubject == "" {
		correlationSubject = "all"
	}
	report := &Report{
		DryRun:        dryRun,
		CorrelationID: fmt.Sprintf("flush-%s-%d", correlationSubject, e.now().Unix()),
	}
	logger := e.logger.With(slog.String("correlation_id", report.CorrelationID))

	users, err := e.workingUserSet(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("compute working user set: %w", err)
	}

	for _, u := range users {
		if err := e.flushOne(ctx, u, dryRun, forceDelivery, report, logger); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("user %s: %v", u, err))
			logger.Error("flush failed for user", slog.String("user_id", u), slog.Any("error", err))
		}
	}

	dryRunLabel := "false"
	if dryRun {
		dryRunLabel = "true"
	}
	e.metrics.FlushesRun.WithLabelValues(dryRunLabel).Inc()
	e.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	e.metrics.EventsCleared.Add(float64(report.EventsCleared))

	logger.Info("flush complete",
		slog.Int("users_processed", report.UsersProcessed),
		slog.Int("messages_delivered", report.MessagesDelivered),
		slog.Int("messages_failed", report.MessagesFailed),
		slog.Int("events_cleared", report.EventsCleared))
	return report, nil
}

func (e *Engine) workingUserSet(ctx context.Context, userID string) ([]string, error) {
	if userID != "" {
		return []string{userID}, nil
	}
	return e.store.DistinctUndeliveredUsers(ctx)
}

// flushOne implements §4.5 steps 2a-2e for a single user.
func (e *Engine) flushOne(ctx context.Context, userID string, dryRun, forceDelivery bool, report *Report, logger *slog.Logger) error {
	if e.cache != nil {
		acquired, err := e.cache.AcquireFlushLock(ctx, userID)
		if err != nil {
			logger.Warn("flush lock check failed, proceeding without it", slog.String("user_id", userID), slog.Any("error", err))
		} else if !acquired {
			logger.Info("skipping user, flush already in progress", slog.String("user_id", userID))
			return nil
		}
		defer func() { _ = e.cache.ReleaseFlushLock(ctx, userID) }()
	}

	events, err := e.store.GetUndeliveredEvents(ctx, userID, "", 0)
	if err != nil {
		return fmt.Errorf("get undelivered events: %w", err)
	}
	subs, err := e.store.ListSubscriptions(ctx, userID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	enabled := make([]domain.Subscription, 0, len(subs))
	for _, s := range subs {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}

	if len(events) == 0 || len(enabled) == 0 {
		return nil
	}

	report.UsersProcessed++
	maxTimestamp := maxTimestampOf(events)

	var anySuccess, anyFailure, allRetry, allIgnore bool
	allRetry = true
	allIgnore = true

	for _, sub := range enabled {
		rendered, err := aggregate.Render(userID, events, sub.AggregationMethod, sub.AggregatedMessageSubject)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("render for subscription %s: %v", sub.SubscriptionID, err))
			anyFailure = true
			continue
		}

		if dryRun {
			report.MessagesDelivered++
			continue
		}

		provider := e.providerFor(sub.DeliveryMethod)
		result, sendErr := provider.Send(ctx, sub, rendered.Subject, rendered.Body, rendered.ContentType, "")

		if result.Outcome == providers.Delivered {
			report.MessagesDelivered++
			anySuccess = true
			e.metrics.EventsDelivered.WithLabelValues(string(sub.DeliveryMethod)).Inc()
		} else {
			report.MessagesFailed++
			anyFailure = true
			kind := "transient"
			if result.Outcome == providers.PermanentFailure {
				kind = "permanent"
			}
			e.metrics.EventsFailed.WithLabelValues(string(sub.DeliveryMethod), kind).Inc()
			if sendErr != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("deliver to subscription %s: %v", sub.SubscriptionID, sendErr))
			}
		}

		if sub.DeliveryErrorStrategy != domain.StrategyRetry {
			allRetry = false
		}
		if sub.DeliveryErrorStrategy != domain.StrategyIgnore {
			allIgnore = false
		}
	}

	shouldClear := decideClear(anySuccess, anyFailure, allRetry, allIgnore, forceDelivery)
	if dryRun || !shouldClear {
		return nil
	}

	cleared, err := e.store.ClearEvents(ctx, userID, maxTimestamp)
	if err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	report.EventsCleared += cleared
	return nil
}

// decideClear implements §4.5 step 2d.
func decideClear(anySuccess, anyFailure, allRetry, allIgnore, forceDelivery bool) bool {
	if forceDelivery {
		return true
	}
	if anySuccess {
		return true
	}
	if !anyFailure {
		return false
	}
	if allRetry {
		return false
	}
	if allIgnore {
		return true
	}
	return false
}

func (e *Engine) providerFor(method domain.DeliveryMethod) providers.Provider {
	if method == domain.DeliverySlack {
		return e.webhook
	}
	return e.email
}

func maxTimestampOf(events []domain.Event) time.Time {
	var max time.Time
	for _, e := range events {
		if e.Timestamp.After(max) {
			max = e.Timestamp
		}
	}
	return max
}
