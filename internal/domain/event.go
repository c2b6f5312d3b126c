// Package domain holds the core data model shared across the store,
// aggregator, providers, ingestion and flush packages.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Metadata is a JSON-serializable map stored as a single JSONB column.
// Routing never inspects it: it is opaque payload carried alongside an
// event.
type Metadata map[string]interface{}

// Value implements driver.Valuer so GORM can write Metadata as JSON.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner so GORM can read a JSONB column back.
func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = Metadata{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("domain: unsupported Metadata scan source")
	}
	if len(raw) == 0 {
		*m = Metadata{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// EventType classifies an inbound notification event.
type EventType string

const (
	EventNotification EventType = "NOTIFICATION"
	EventAlert        EventType = "ALERT"
	EventWarning      EventType = "WARNING"
	EventInfo         EventType = "INFO"
)

// Valid reports whether t is one of the four known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventNotification, EventAlert, EventWarning, EventInfo:
		return true
	}
	return false
}

// Event is an immutable record created by an upstream publisher.
type Event struct {
	EventID   string    `json:"event_id" gorm:"primaryKey;column:event_id"`
	UserID    string    `json:"user_id" gorm:"column:user_id;index:idx_user_ts;index:idx_user_type_ts"`
	EventType EventType `json:"event_type" gorm:"column:event_type;index:idx_user_type_ts"`
	Message   string    `json:"message" gorm:"column:message"`
	Sender    string    `json:"sender" gorm:"column:sender"`
	Subject   string    `json:"subject" gorm:"column:subject"`
	Timestamp time.Time `json:"timestamp" gorm:"column:timestamp;index:idx_user_ts;index:idx_user_type_ts"`
	Metadata  Metadata  `json:"metadata" gorm:"column:metadata;type:jsonb"`
}

// TableName pins the GORM table name regardless of struct name changes.
func (Event) TableName() string { return "events" }
