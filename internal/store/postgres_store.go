package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/CyberwizD/notification-delivery-service/internal/domain"
	"github.com/CyberwizD/notification-delivery-service/pkg/retry"
)

// PostgresStore is the GORM-backed EventStore implementation. It follows
// the teacher's StatusStore: AutoMigrate at construction time and
// clause.OnConflict for idempotent upserts.
type PostgresStore struct {
	db        *gorm.DB
	retryCfg  retry.Config
	pageSize  int
}

// NewPostgresStore opens the events/subscriptions tables, migrating them
// if necessary. AutoMigrate errors are surfaced to the caller, unlike the
// teacher's status store, because a missing events table is fatal here.
func NewPostgresStore(db *gorm.DB, retryCfg retry.Config) (*PostgresStore, error) {
	if err := db.AutoMigrate(&domain.Event{}, &domain.Subscription{}); err != nil {
		return nil, fmt.Errorf("store: automigrate failed: %w", err)
	}
	if retryCfg.Retryable == nil {
		retryCfg.Retryable = isRetryableStoreError
	}
	return &PostgresStore{db: db, retryCfg: retryCfg, pageSize: 500}, nil
}

// isRetryableStoreError stops the retry loop early on errors another
// attempt against the same connection cannot fix: a canceled/expired
// context, or gorm.ErrRecordNotFound from a Find/First inside withRetry.
func isRetryableStoreError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	return true
}

func (s *PostgresStore) withRetry(ctx context.Context, fn func() error) error {
	err := retry.Do(ctx, s.retryCfg, fn)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

// StoreEvent persists exactly one event keyed by event_id. Storing the
// same event_id twice is a no-op success (idempotent ingestion, §8.1).
func (s *PostgresStore) StoreEvent(ctx context.Context, event domain.Event) error {
	return s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "event_id"}},
				DoNothing: true,
			}).
			Create(&event).Error
	})
}

// DeleteEvent removes exactly one event by id.
func (s *PostgresStore) DeleteEvent(ctx context.Context, eventID string) (bool, error) {
	var deleted int64
	err := s.withRetry(ctx, func() error {
		res := s.db.WithContext(ctx).Where("event_id = ?", eventID).Delete(&domain.Event{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted > 0, err
}

// GetEvent fetches a single event by id.
func (s *PostgresStore) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	var event domain.Event
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&event).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return &event, nil
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context, userID string) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	q := s.db.WithContext(ctx)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	err := s.withRetry(ctx, func() error {
		return q.Find(&subs).Error
	})
	return subs, err
}

func (s *PostgresStore) GetSubscription(ctx context.Context, subscriptionID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := s.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).First(&sub).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return &sub, nil
}

// UpsertSubscription creates or replaces a subscription keyed by
// subscription_id.
func (s *PostgresStore) UpsertSubscription(ctx context.Context, sub domain.Subscription) error {
	return s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "subscription_id"}},
				UpdateAll: true,
			}).
			Create(&sub).Error
	})
}

// DeleteSubscription removes a subscription. Deleting a missing id is a
// no-op success.
func (s *PostgresStore) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	return s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).Delete(&domain.Subscription{}).Error
	})
}

// GetUndeliveredEvents returns events ordered ascending by timestamp, ties
// broken by event_id. It queries the database in pageSize batches, but
// appends every batch to the returned slice, so the whole matching result
// set (up to limit, or all of it when limit is zero) is held in memory at
// once.
func (s *PostgresStore) GetUndeliveredEvents(ctx context.Context, userID string, eventType domain.EventType, limit int) ([]domain.Event, error) {
	var out []domain.Event
	lastTimestamp := time.Time{}
	lastID := ""
	for {
		batchLimit := s.pageSize
		if limit > 0 {
			remaining := limit - len(out)
			if remaining <= 0 {
				break
			}
			if remaining < batchLimit {
				batchLimit = remaining
			}
		}

		q := s.db.WithContext(ctx).Order("timestamp ASC, event_id ASC").Limit(batchLimit)
		if userID != "" {
			q = q.Where("user_id = ?", userID)
		}
		if eventType != "" {
			q = q.Where("event_type = ?", eventType)
		}
		if !lastTimestamp.IsZero() {
			q = q.Where("(timestamp > ?) OR (timestamp = ? AND event_id > ?)", lastTimestamp, lastTimestamp, lastID)
		}

		var page []domain.Event
		if err := s.withRetry(ctx, func() error { return q.Find(&page).Error }); err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < batchLimit {
			break
		}
		last := page[len(page)-1]
		lastTimestamp, lastID = last.Timestamp, last.EventID
	}
	return out, nil
}

// ClearEvents removes every event for userID with timestamp <=
// beforeTimestamp inside a single transaction, so it cannot race a
// concurrent StoreEvent for the same user into deleting an event that
// arrived after the snapshot was taken.
func (s *PostgresStore) ClearEvents(ctx context.Context, userID string, beforeTimestamp time.Time) (int, error) {
	var cleared int64
	err := s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Where("user_id = ? AND timestamp <= ?", userID, beforeTimestamp).Delete(&domain.Event{})
			cleared = res.RowsAffected
			return res.Error
		})
	})
	return int(cleared), err
}

// DeleteUndelivered removes specific event ids, or every event for userID
// when eventIDs is empty.
func (s *PostgresStore) DeleteUndelivered(ctx context.Context, eventIDs []string, userID string) (int, error) {
	var deleted int64
	err := s.withRetry(ctx, func() error {
		q := s.db.WithContext(ctx).Model(&domain.Event{})
		switch {
		case len(eventIDs) > 0:
			q = q.Where("event_id IN ?", eventIDs)
		case userID != "":
			q = q.Where("user_id = ?", userID)
		default:
			return fmt.Errorf("store: DeleteUndelivered requires event_ids or user_id")
		}
		res := q.Delete(&domain.Event{})
		deleted = res.RowsAffected
		return res.Error
	})
	return int(deleted), err
}

func (s *PostgresStore) DistinctUndeliveredUsers(ctx context.Context) ([]string, error) {
	var users []string
	err := s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Model(&domain.Event{}).Distinct("user_id").Pluck("user_id", &users).Error
	})
	return users, err
}

// Stats derives the undelivered backlog summary by scan, as permitted by
// §4.1.
func (s *PostgresStore) Stats(ctx context.Context) (domain.Stats, error) {
	stats := domain.Stats{PerUser: map[string]int{}, PerType: map[domain.EventType]int{}}

	var rows []struct {
		UserID    string
		EventType domain.EventType
		Count     int
	}
	err := s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Model(&domain.Event{}).
			Select("user_id, event_type, count(*) as count").
			Group("user_id, event_type").
			Scan(&rows).Error
	})
	if err != nil {
		return stats, err
	}

	users := map[string]bool{}
	for _, r := range rows {
		users[r.UserID] = true
		stats.PerUser[r.UserID] += r.Count
		stats.PerType[r.EventType] += r.Count
		stats.TotalUndelivered += r.Count
	}
	stats.UsersWithUndelivered = len(users)
	return stats, nil
}
