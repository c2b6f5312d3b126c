// Package aggregate implements the aggregator (C2): rendering a set of
// events for one subscription into a single message body in one of three
// formats. The package is pure and stateless — same input, same output,
// except for the MIME boundary.
package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/CyberwizD/notification-delivery-service/internal/domain"
)

// Rendered is the output of Render: a subject line, a body, and the MIME
// content type the body should be sent with.
type Rendered struct {
	Subject     string
	Body        string
	ContentType string
}

// Render renders events for userID into a single message using method.
// Events are first sorted ascending by timestamp (ties by event_id) so
// every formatter sees a deterministic order.
func Render(userID string, events []domain.Event, method domain.AggregationMethod, subjectOverride string) (Rendered, error) {
	sorted := sortedCopy(events)
	subject := subjectFor(userID, sorted, subjectOverride)

	switch method {
	case domain.AggregationPlain, "":
		return Rendered{Subject: subject, Body: renderPlain(userID, sorted), ContentType: "text/plain; charset=utf-8"}, nil
	case domain.AggregationHTML:
		return Rendered{Subject: subject, Body: renderHTML(sorted), ContentType: "text/html; charset=utf-8"}, nil
	case domain.AggregationMIME:
		body, contentType := renderMIME(userID, sorted)
		return Rendered{Subject: subject, Body: body, ContentType: contentType}, nil
	default:
		return Rendered{}, fmt.Errorf("aggregate: unknown aggregation method %q", method)
	}
}

// RenderTemplate performs naive moustache-style {{key}} substitution,
// adapted from the teacher's template renderer, used to expand a
// subscription's aggregated_message_subject (e.g. "Daily Digest
// ({{count}} events)").
func RenderTemplate(template string, variables map[string]string) string {
	if template == "" || len(variables) == 0 {
		return template
	}
	out := template
	for key, value := range variables {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
		out = strings.ReplaceAll(out, "{{ "+key+" }}", value)
	}
	return out
}

func subjectFor(userID string, events []domain.Event, override string) string {
	if override != "" {
		return RenderTemplate(override, map[string]string{
			"count":   fmt.Sprintf("%d", len(events)),
			"user_id": userID,
		})
	}
	return fmt.Sprintf("Event Summary for User %s", userID)
}

func sortedCopy(events []domain.Event) []domain.Event {
	out := make([]domain.Event, len(events))
	copy(out, events)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].EventID < out[j].EventID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func dateRange(events []domain.Event) (time.Time, time.Time) {
	if len(events) == 0 {
		return time.Time{}, time.Time{}
	}
	return events[0].Timestamp, events[len(events)-1].Timestamp
}

func groupByType(events []domain.Event) (types []domain.EventType, byType map[domain.EventType][]domain.Event) {
	byType = make(map[domain.EventType][]domain.Event)
	seen := make(map[domain.EventType]bool)
	for _, e := range events {
		byType[e.EventType] = append(byType[e.EventType], e)
		if !seen[e.EventType] {
			seen[e.EventType] = true
			types = append(types, e.EventType)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types, byType
}

func excerpt(e domain.Event) string {
	if e.Subject != "" {
		return e.Subject
	}
	return e.Message
}
