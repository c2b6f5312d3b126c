package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/CyberwizD/notification-delivery-service/internal/aggregate"
	"github.com/CyberwizD/notification-delivery-service/internal/cache"
	"github.com/CyberwizD/notification-delivery-service/internal/domain"
	"github.com/CyberwizD/notification-delivery-service/internal/providers"
	"github.com/CyberwizD/notification-delivery-service/internal/store"
	"github.com/CyberwizD/notification-delivery-service/pkg/metrics"
)

// permanentError marks an envelope as unparseable/invalid so the consumer
// dead-letters it instead of requeuing forever.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func newPermanentError(format string, args ...interface{}) error {
	return &permanentError{err: fmt.Errorf(format, args...)}
}

// IsPermanent reports whether err should be dead-lettered rather than
// requeued.
func IsPermanent(err error) bool {
	_, ok := err.(*permanentError)
	return ok
}

// Processor implements the §4.4 algorithm for a single inbound message.
type Processor struct {
	store        store.EventStore
	email        providers.Provider
	webhook      providers.Provider
	cache        *cache.Cache
	metrics      *metrics.Metrics
	logger       *slog.Logger
	defaultFrom  string
}

// NewProcessor wires the ingestion processor. email and webhook are the
// two C3 providers; cache may be nil.
func NewProcessor(s store.EventStore, email, webhook providers.Provider, c *cache.Cache, m *metrics.Metrics, defaultSender string, logger *slog.Logger) *Processor {
	return &Processor{
		store:       s,
		email:       email,
		webhook:     webhook,
		cache:       c,
		metrics:     m,
		logger:      logger,
		defaultFrom: defaultSender,
	}
}

// Process runs the five-step algorithm of §4.4 against one raw message
// body. A returned permanentError means the caller should dead-letter
// rather than requeue; any other error means requeue.
func (p *Processor) Process(ctx context.Context, body []byte) error {
	env, err := parseEnvelope(body)
	if err != nil {
		return newPermanentError("parse envelope: %w", err)
	}

	p.metrics.EventsConsumed.WithLabelValues(string(env.EventType)).Inc()

	if p.cache != nil {
		processed, err := p.cache.IsEventProcessed(ctx, env.EventID)
		if err != nil {
			p.logger.Warn("dedup check failed, proceeding without it", slog.String("event_id", env.EventID), slog.Any("error", err))
		} else if processed {
			p.logger.Info("skipping already-processed event", slog.String("event_id", env.EventID))
			return nil
		}
	}

	if env.isEmailGateway() {
		return p.processEmailGateway(ctx, env)
	}

	targets := env.targetUsers()
	if len(targets) == 0 {
		return newPermanentError("envelope %s resolved to no target users", env.EventID)
	}

	for _, userID := range targets {
		if err := p.processUser(ctx, env, userID); err != nil {
			return err
		}
	}

	if p.cache != nil {
		_ = p.cache.MarkEventProcessed(ctx, env.EventID)
	}
	return nil
}

func (p *Processor) processEmailGateway(ctx context.Context, env Envelope) error {
	sender := env.Sender
	if sender == "" {
		sender = p.defaultFrom
	}
	result, err := p.email.Send(ctx, domain.Subscription{EmailAddress: env.EmailTo}, env.Subject, env.Message, "text/plain; charset=utf-8", sender)
	if err != nil || result.Outcome != providers.Delivered {
		p.metrics.EventsFailed.WithLabelValues("email", string(result.Outcome)).Inc()
		if result.Outcome == providers.PermanentFailure {
			return newPermanentError("email gateway delivery to %s: %s", env.EmailTo, result.Detail)
		}
		return fmt.Errorf("email gateway delivery to %s: %s", env.EmailTo, result.Detail)
	}
	p.metrics.EventsDelivered.WithLabelValues("email").Inc()
	if p.cache != nil {
		_ = p.cache.MarkEventProcessed(ctx, env.EventID)
	}
	return nil
}

// processUser implements §4.4 steps 3-4 for one target user.
func (p *Processor) processUser(ctx context.Context, env Envelope, userID string) error {
	subs, err := p.store.ListSubscriptions(ctx, userID)
	if err != nil {
		return fmt.Errorf("list subscriptions for %s: %w", userID, err)
	}

	enabled := make([]domain.Subscription, 0, len(subs))
	for _, s := range subs {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}

	if len(enabled) == 0 {
		return p.persistEvent(ctx, env, userID)
	}

	for _, sub := range enabled {
		if err := p.deliverOrPersist(ctx, env, userID, sub); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) deliverOrPersist(ctx context.Context, env Envelope, userID string, sub domain.Subscription) error {
	if sub.AggregationFrequency != domain.FrequencyImmediate {
		return p.persistEvent(ctx, env, userID)
	}

	event := env.toEvent(userID)
	rendered, err := aggregate.Render(userID, []domain.Event{event}, sub.AggregationMethod, sub.AggregatedMessageSubject)
	if err != nil {
		return fmt.Errorf("render for %s: %w", sub.SubscriptionID, err)
	}

	provider := p.providerFor(sub.DeliveryMethod)
	result, sendErr := provider.Send(ctx, sub, rendered.Subject, rendered.Body, rendered.ContentType, env.Sender)

	switch result.Outcome {
	case providers.Delivered:
		p.metrics.EventsDelivered.WithLabelValues(string(sub.DeliveryMethod)).Inc()
		return nil
	case providers.TransientFailure:
		p.metrics.EventsFailed.WithLabelValues(string(sub.DeliveryMethod), "transient").Inc()
		if sub.DeliveryErrorStrategy == domain.StrategyRetry {
			return p.persistEvent(ctx, env, userID)
		}
		p.logger.Info("dropping event after transient failure, strategy is IGNORE",
			slog.String("event_id", env.EventID), slog.String("subscription_id", sub.SubscriptionID))
		return nil
	default: // PermanentFailure
		p.metrics.EventsFailed.WithLabelValues(string(sub.DeliveryMethod), "permanent").Inc()
		p.logger.Error("permanent delivery failure, dropping event",
			slog.String("event_id", env.EventID), slog.String("subscription_id", sub.SubscriptionID), slog.Any("error", sendErr))
		return nil
	}
}

func (p *Processor) persistEvent(ctx context.Context, env Envelope, userID string) error {
	if err := p.store.StoreEvent(ctx, env.toEvent(userID)); err != nil {
		return fmt.Errorf("store event %s for %s: %w", env.EventID, userID, err)
	}
	p.metrics.EventsStored.Inc()
	return nil
}

func (p *Processor) providerFor(method domain.DeliveryMethod) providers.Provider {
	if method == domain.DeliverySlack {
		return p.webhook
	}
	return p.email
}
