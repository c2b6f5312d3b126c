// Package store implements the durable event/subscription store (C1):
// idempotent event persistence, subscription CRUD, undelivered-event
// queries, and atomic clear-after-deliver.
package store

import (
	"context"
	"time"

	"github.com/CyberwizD/notification-delivery-service/internal/domain"
)

// EventStore is the contract every component (ingestion, flush, the
// management API) uses to read and mutate undelivered events and
// subscriptions. The backing implementation is the sole source of truth
// for "what has not yet been delivered": presence in the store, not a
// boolean flag, is ground truth.
type EventStore interface {
	StoreEvent(ctx context.Context, event domain.Event) error
	DeleteEvent(ctx context.Context, eventID string) (bool, error)
	GetEvent(ctx context.Context, eventID string) (*domain.Event, error)

	ListSubscriptions(ctx context.Context, userID string) ([]domain.Subscription, error)
	UpsertSubscription(ctx context.Context, sub domain.Subscription) error
	DeleteSubscription(ctx context.Context, subscriptionID string) error
	GetSubscription(ctx context.Context, subscriptionID string) (*domain.Subscription, error)

	// GetUndeliveredEvents returns events in the store, optionally filtered
	// by userID and eventType, ordered ascending by timestamp then event_id.
	// A zero limit means "all" (paged internally).
	GetUndeliveredEvents(ctx context.Context, userID string, eventType domain.EventType, limit int) ([]domain.Event, error)

	// ClearEvents removes every event for userID with timestamp <=
	// beforeTimestamp and returns the count removed. Must be atomic with
	// respect to concurrent StoreEvent calls for the same user.
	ClearEvents(ctx context.Context, userID string, beforeTimestamp time.Time) (int, error)

	// DeleteUndelivered removes specific event ids, or every event for a
	// user when eventIDs is empty, and returns the count removed.
	DeleteUndelivered(ctx context.Context, eventIDs []string, userID string) (int, error)

	// DistinctUndeliveredUsers returns every user id with at least one
	// event currently in the store.
	DistinctUndeliveredUsers(ctx context.Context) ([]string, error)

	Stats(ctx context.Context) (domain.Stats, error)
}
