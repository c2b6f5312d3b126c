package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/CyberwizD/notification-delivery-service/internal/domain"
)

// MemoryStore is an in-memory EventStore used by unit tests that need a
// real implementation of the interface without a live Postgres instance,
// following the pack's plain Store-interface idiom (see
// other_examples/colonyops-hive__store.go).
type MemoryStore struct {
	mu    sync.Mutex
	events map[string]domain.Event
	subs   map[string]domain.Subscription
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string]domain.Event),
		subs:   make(map[string]domain.Subscription),
	}
}

func (m *MemoryStore) StoreEvent(_ context.Context, event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.events[event.EventID]; exists {
		return nil
	}
	m.events[event.EventID] = event
	return nil
}

func (m *MemoryStore) DeleteEvent(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, existed := m.events[eventID]
	delete(m.events, eventID)
	return existed, nil
}

func (m *MemoryStore) GetEvent(_ context.Context, eventID string) (*domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (m *MemoryStore) ListSubscriptions(_ context.Context, userID string) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Subscription
	for _, s := range m.subs {
		if userID == "" || s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetSubscription(_ context.Context, subscriptionID string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[subscriptionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) UpsertSubscription(_ context.Context, sub domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.SubscriptionID] = sub
	return nil
}

func (m *MemoryStore) DeleteSubscription(_ context.Context, subscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, subscriptionID)
	return nil
}

func (m *MemoryStore) GetUndeliveredEvents(_ context.Context, userID string, eventType domain.EventType, limit int) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, e := range m.events {
		if userID != "" && e.UserID != userID {
			continue
		}
		if eventType != "" && e.EventType != eventType {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].EventID < out[j].EventID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ClearEvents(_ context.Context, userID string, beforeTimestamp time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cleared := 0
	for id, e := range m.events {
		if e.UserID == userID && !e.Timestamp.After(beforeTimestamp) {
			delete(m.events, id)
			cleared++
		}
	}
	return cleared, nil
}

func (m *MemoryStore) DeleteUndelivered(_ context.Context, eventIDs []string, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	if len(eventIDs) > 0 {
		for _, id := range eventIDs {
			if _, ok := m.events[id]; ok {
				delete(m.events, id)
				deleted++
			}
		}
		return deleted, nil
	}
	for id, e := range m.events {
		if e.UserID == userID {
			delete(m.events, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryStore) DistinctUndeliveredUsers(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, e := range m.events {
		if !seen[e.UserID] {
			seen[e.UserID] = true
			out = append(out, e.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Stats(_ context.Context) (domain.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := domain.Stats{PerUser: map[string]int{}, PerType: map[domain.EventType]int{}}
	users := map[string]bool{}
	for _, e := range m.events {
		users[e.UserID] = true
		stats.PerUser[e.UserID]++
		stats.PerType[e.EventType]++
		stats.TotalUndelivered++
	}
	stats.UsersWithUndelivered = len(users)
	return stats, nil
}
