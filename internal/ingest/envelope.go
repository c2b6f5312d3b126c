package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/CyberwizD/notification-delivery-service/internal/domain"
)

// parseEnvelope unmarshals and validates a raw pub/sub message body.
func parseEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid json: %w", err)
	}
	if err := env.validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Envelope is the inbound pub/sub JSON payload (§6). Exactly one of
// UserID, UserIDs, EmailTo must be present.
type Envelope struct {
	EventID   string            `json:"event_id"`
	UserID    string            `json:"user_id,omitempty"`
	UserIDs   []string          `json:"user_ids,omitempty"`
	EventType domain.EventType  `json:"event_type"`
	Message   string            `json:"message"`
	Sender    string            `json:"sender"`
	Subject   string            `json:"subject"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  domain.Metadata   `json:"metadata"`
	EmailTo   string            `json:"email_to,omitempty"`
}

// validate rejects malformed envelopes before any processing is attempted,
// per §4.4 step 1.
func (e Envelope) validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if !e.EventType.Valid() {
		return fmt.Errorf("invalid event_type %q", e.EventType)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	targets := 0
	if e.UserID != "" {
		targets++
	}
	if len(e.UserIDs) > 0 {
		targets++
	}
	if e.EmailTo != "" {
		targets++
	}
	if targets != 1 {
		return fmt.Errorf("exactly one of user_id, user_ids, email_to must be present")
	}
	return nil
}

func (e Envelope) isEmailGateway() bool { return e.EmailTo != "" }

// targetUsers expands user_id/user_ids into a de-duplicated target set.
func (e Envelope) targetUsers() []string {
	if len(e.UserIDs) > 0 {
		seen := make(map[string]struct{}, len(e.UserIDs))
		out := make([]string, 0, len(e.UserIDs))
		for _, u := range e.UserIDs {
			if u == "" {
				continue
			}
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
		return out
	}
	if e.UserID != "" {
		return []string{e.UserID}
	}
	return nil
}

// toEvent builds the domain.Event to persist for userID. The stored id is
// always the per-user id = f"{event_id}-{user_id}" (mirroring
// original_source/messaging-service/src/message_server.py:1118-1124,1216,
// which normalizes every user_id/user_ids payload into a list and computes
// user_event_id unconditionally, not just on fan-out). Every store
// implementation keys StoreEvent solely on EventID, so leaving this
// conditional on fan-out would let two unrelated single-target messages
// that happen to reuse the same event_id silently collide.
func (e Envelope) toEvent(userID string) domain.Event {
	return domain.Event{
		EventID:   fmt.Sprintf("%s-%s", e.EventID, userID),
		UserID:    userID,
		EventType: e.EventType,
		Message:   e.Message,
		Sender:    e.Sender,
		Subject:   e.Subject,
		Timestamp: e.Timestamp,
		Metadata:  e.Metadata,
	}
}
