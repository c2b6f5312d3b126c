package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/CyberwizD/notification-delivery-service/internal/cache"
	"github.com/CyberwizD/notification-delivery-service/internal/domain"
	"github.com/CyberwizD/notification-delivery-service/internal/providers"
	"github.com/CyberwizD/notification-delivery-service/internal/store"
	"github.com/CyberwizD/notification-delivery-service/pkg/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider is a Provider test double that records every call and
// returns a fixed Result.
type fakeProvider struct {
	name   string
	result providers.Result
	err    error
	calls  int
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Send(_ context.Context, _ domain.Subscription, _, _, _, _ string) (providers.Result, error) {
	f.calls++
	return f.result, f.err
}

func newEnvelopeJSON(t *testing.T, env map[string]interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return b
}

func baseEnvelope() map[string]interface{} {
	return map[string]interface{}{
		"event_id":   "e1",
		"user_id":    "u1",
		"event_type": "NOTIFICATION",
		"message":    "hello",
		"sender":     "system",
		"subject":    "hi",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"metadata":   map[string]interface{}{},
	}
}

func TestProcessorPersistsWhenNoSubscriptions(t *testing.T) {
	s := store.NewMemoryStore()
	email := &fakeProvider{name: "email", result: providers.Result{Outcome: providers.Delivered}}
	webhook := &fakeProvider{name: "webhook", result: providers.Result{Outcome: providers.Delivered}}
	p := NewProcessor(s, email, webhook, cache.New(nil, 0, 0), metrics.New(), "default@example.com", discardLogger())

	if err := p.Process(context.Background(), newEnvelopeJSON(t, baseEnvelope())); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	events, _ := s.GetUndeliveredEvents(context.Background(), "u1", "", 0)
	if len(events) != 1 {
		t.Fatalf("expected event to be persisted, got %d events", len(events))
	}
	if email.calls != 0 {
		t.Fatalf("expected no delivery attempt without subscriptions")
	}
}

func TestProcessorDeliversImmediateSubscription(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	_ = s.UpsertSubscription(ctx, domain.Subscription{
		SubscriptionID:       "sub-1",
		UserID:               "u1",
		DeliveryMethod:       domain.DeliveryEmail,
		AggregationFrequency: domain.FrequencyImmediate,
		AggregationMethod:    domain.AggregationPlain,
		EmailAddress:         "user@example.com",
		DeliveryErrorStrategy: domain.StrategyRetry,
		Enabled:              true,
	})

	email := &fakeProvider{name: "email", result: providers.Result{Outcome: providers.Delivered}}
	webhook := &fakeProvider{name: "webhook", result: providers.Result{Outcome: providers.Delivered}}
	p := NewProcessor(s, email, webhook, cache.New(nil, 0, 0), metrics.New(), "default@example.com", discardLogger())

	if err := p.Process(ctx, newEnvelopeJSON(t, baseEnvelope())); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	if email.calls != 1 {
		t.Fatalf("expected exactly one delivery attempt, got %d", email.calls)
	}
	events, _ := s.GetUndeliveredEvents(ctx, "u1", "", 0)
	if len(events) != 0 {
		t.Fatalf("expected no persisted event after successful immediate delivery, got %d", len(events))
	}
}

func TestProcessorPersistsOnTransientFailureWithRetryStrategy(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	_ = s.UpsertSubscription(ctx, domain.Subscription{
		SubscriptionID:        "sub-1",
		UserID:                "u1",
		DeliveryMethod:        domain.DeliveryEmail,
		AggregationFrequency:  domain.FrequencyImmediate,
		AggregationMethod:     domain.AggregationPlain,
		EmailAddress:          "user@example.com",
		DeliveryErrorStrategy: domain.StrategyRetry,
		Enabled:               true,
	})

	email := &fakeProvider{name: "email", result: providers.Result{Outcome: providers.TransientFailure}}
	webhook := &fakeProvider{name: "webhook"}
	p := NewProcessor(s, email, webhook, cache.New(nil, 0, 0), metrics.New(), "default@example.com", discardLogger())

	if err := p.Process(ctx, newEnvelopeJSON(t, baseEnvelope())); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	events, _ := s.GetUndeliveredEvents(ctx, "u1", "", 0)
	if len(events) != 1 {
		t.Fatalf("expected event persisted for later retry, got %d", len(events))
	}
}

func TestProcessorDropsOnTransientFailureWithIgnoreStrategy(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	_ = s.UpsertSubscription(ctx, domain.Subscription{
		SubscriptionID:        "sub-1",
		UserID:                "u1",
		DeliveryMethod:        domain.DeliveryEmail,
		AggregationFrequency:  domain.FrequencyImmediate,
		AggregationMethod:     domain.AggregationPlain,
		EmailAddress:          "user@example.com",
		DeliveryErrorStrategy: domain.StrategyIgnore,
		Enabled:               true,
	})

	email := &fakeProvider{name: "email", result: providers.Result{Outcome: providers.TransientFailure}}
	webhook := &fakeProvider{name: "webhook"}
	p := NewProcessor(s, email, webhook, cache.New(nil, 0, 0), metrics.New(), "default@example.com", discardLogger())

	if err := p.Process(ctx, newEnvelopeJSON(t, baseEnvelope())); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	events, _ := s.GetUndeliveredEvents(ctx, "u1", "", 0)
	if len(events) != 0 {
		t.Fatalf("expected event to be dropped, got %d", len(events))
	}
}

func TestProcessorDeferredSubscriptionAlwaysPersists(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	_ = s.UpsertSubscription(ctx, domain.Subscription{
		SubscriptionID:       "sub-1",
		UserID:               "u1",
		DeliveryMethod:       domain.DeliveryEmail,
		AggregationFrequency: domain.FrequencyDaily,
		EmailAddress:         "user@example.com",
		Enabled:              true,
	})

	email := &fakeProvider{name: "email", result: providers.Result{Outcome: providers.Delivered}}
	webhook := &fakeProvider{name: "webhook"}
	p := NewProcessor(s, email, webhook, cache.New(nil, 0, 0), metrics.New(), "default@example.com", discardLogger())

	if err := p.Process(ctx, newEnvelopeJSON(t, baseEnvelope())); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if email.calls != 0 {
		t.Fatalf("expected no immediate delivery for a DAILY subscription")
	}
	events, _ := s.GetUndeliveredEvents(ctx, "u1", "", 0)
	if len(events) != 1 {
		t.Fatalf("expected event persisted for later flush, got %d", len(events))
	}
}

func TestProcessorRejectsMalformedEnvelope(t *testing.T) {
	s := store.NewMemoryStore()
	email := &fakeProvider{name: "email"}
	webhook := &fakeProvider{name: "webhook"}
	p := NewProcessor(s, email, webhook, cache.New(nil, 0, 0), metrics.New(), "default@example.com", discardLogger())

	err := p.Process(context.Background(), []byte(`{not json`))
	if err == nil || !IsPermanent(err) {
		t.Fatalf("expected a permanent error for malformed json, got %v", err)
	}
}

func TestProcessorFanOut(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	_ = s.UpsertSubscription(ctx, domain.Subscription{
		SubscriptionID:       "sub-u1",
		UserID:               "u1",
		DeliveryMethod:       domain.DeliveryEmail,
		AggregationFrequency: domain.FrequencyImmediate,
		AggregationMethod:    domain.AggregationPlain,
		EmailAddress:         "u1@example.com",
		Enabled:              true,
	})
	_ = s.UpsertSubscription(ctx, domain.Subscription{
		SubscriptionID:       "sub-u2",
		UserID:               "u2",
		DeliveryMethod:       domain.DeliveryEmail,
		AggregationFrequency: domain.FrequencyDaily,
		EmailAddress:         "u2@example.com",
		Enabled:              true,
	})

	email := &fakeProvider{name: "email", result: providers.Result{Outcome: providers.Delivered}}
	webhook := &fakeProvider{name: "webhook"}
	p := NewProcessor(s, email, webhook, cache.New(nil, 0, 0), metrics.New(), "default@example.com", discardLogger())

	env := baseEnvelope()
	delete(env, "user_id")
	env["user_ids"] = []string{"u1", "u2"}

	if err := p.Process(ctx, newEnvelopeJSON(t, env)); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if email.calls != 1 {
		t.Fatalf("expected exactly one immediate delivery (u1), got %d", email.calls)
	}
	events, _ := s.GetUndeliveredEvents(ctx, "u2", "", 0)
	if len(events) != 1 {
		t.Fatalf("expected u2's event to be stored for later flush, got %d", len(events))
	}
}

// TestProcessorFanOutDisambiguatesSharedEventID guards against the
// collision every EventStore implementation would otherwise hit: both
// PostgresStore's clause.OnConflict{DoNothing:true} and MemoryStore key
// solely on EventID, so a user_ids fan-out where two-or-more targets are
// non-IMMEDIATE must not reuse the raw envelope event_id for both stored
// events, or the second StoreEvent call silently no-ops and that user's
// event is lost.
func TestProcessorFanOutDisambiguatesSharedEventID(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	_ = s.UpsertSubscription(ctx, domain.Subscription{
		SubscriptionID:       "sub-u1",
		UserID:               "u1",
		DeliveryMethod:       domain.DeliveryEmail,
		AggregationFrequency: domain.FrequencyDaily,
		EmailAddress:         "u1@example.com",
		Enabled:              true,
	})
	_ = s.UpsertSubscription(ctx, domain.Subscription{
		SubscriptionID:       "sub-u2",
		UserID:               "u2",
		DeliveryMethod:       domain.DeliveryEmail,
		AggregationFrequency: domain.FrequencyDaily,
		EmailAddress:         "u2@example.com",
		Enabled:              true,
	})

	email := &fakeProvider{name: "email", result: providers.Result{Outcome: providers.Delivered}}
	webhook := &fakeProvider{name: "webhook"}
	p := NewProcessor(s, email, webhook, cache.New(nil, 0, 0), metrics.New(), "default@example.com", discardLogger())

	env := baseEnvelope()
	delete(env, "user_id")
	env["user_ids"] = []string{"u1", "u2"}

	if err := p.Process(ctx, newEnvelopeJSON(t, env)); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	u1Events, _ := s.GetUndeliveredEvents(ctx, "u1", "", 0)
	if len(u1Events) != 1 {
		t.Fatalf("expected u1's event to survive the fan-out, got %d", len(u1Events))
	}
	u2Events, _ := s.GetUndeliveredEvents(ctx, "u2", "", 0)
	if len(u2Events) != 1 {
		t.Fatalf("expected u2's event to survive the fan-out, got %d", len(u2Events))
	}
	if u1Events[0].EventID == u2Events[0].EventID {
		t.Fatalf("expected disambiguated event ids, both got %q", u1Events[0].EventID)
	}
}

// TestProcessorReusedEventIDAcrossSeparateSingleTargetMessages guards the
// narrower case the fan-out test above doesn't cover: two independent
// messages, each with a single user_id, that happen to reuse the same
// event_id for two different users. Without per-user disambiguation this
// collides on the same EventStore key and the second message's event is
// silently dropped.
func TestProcessorReusedEventIDAcrossSeparateSingleTargetMessages(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	_ = s.UpsertSubscription(ctx, domain.Subscription{
		SubscriptionID:       "sub-u1",
		UserID:               "u1",
		DeliveryMethod:       domain.DeliveryEmail,
		AggregationFrequency: domain.FrequencyDaily,
		EmailAddress:         "u1@example.com",
		Enabled:              true,
	})
	_ = s.UpsertSubscription(ctx, domain.Subscription{
		SubscriptionID:       "sub-u2",
		UserID:               "u2",
		DeliveryMethod:       domain.DeliveryEmail,
		AggregationFrequency: domain.FrequencyDaily,
		EmailAddress:         "u2@example.com",
		Enabled:              true,
	})

	email := &fakeProvider{name: "email", result: providers.Result{Outcome: providers.Delivered}}
	webhook := &fakeProvider{name: "webhook"}
	p := NewProcessor(s, email, webhook, cache.New(nil, 0, 0), metrics.New(), "default@example.com", discardLogger())

	firstEnv := baseEnvelope()
	firstEnv["user_id"] = "u1"
	if err := p.Process(ctx, newEnvelopeJSON(t, firstEnv)); err != nil {
		t.Fatalf("Process() error on first message: %v", err)
	}

	secondEnv := baseEnvelope()
	secondEnv["user_id"] = "u2"
	if err := p.Process(ctx, newEnvelopeJSON(t, secondEnv)); err != nil {
		t.Fatalf("Process() error on second message: %v", err)
	}

	u1Events, _ := s.GetUndeliveredEvents(ctx, "u1", "", 0)
	if len(u1Events) != 1 {
		t.Fatalf("expected u1's event to be stored, got %d", len(u1Events))
	}
	u2Events, _ := s.GetUndeliveredEvents(ctx, "u2", "", 0)
	if len(u2Events) != 1 {
		t.Fatalf("expected u2's event to survive despite reusing event_id, got %d", len(u2Events))
	}
	if u1Events[0].EventID == u2Events[0].EventID {
		t.Fatalf("expected disambiguated event ids, both got %q", u1Events[0].EventID)
	}
}
