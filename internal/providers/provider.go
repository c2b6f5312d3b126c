// Package providers implements the uniform delivery contract (C3): an
// email provider (SMTP/SMTPS) and a webhook provider (HTTP), both
// oblivious to events and the store — they only know how to send a
// rendered message.
package providers

import (
	"context"

	"github.com/CyberwizD/notification-delivery-service/internal/domain"
)

// Outcome classifies how a Send call resolved.
type Outcome string

const (
	Delivered         Outcome = "delivered"
	TransientFailure  Outcome = "transient-failure"
	PermanentFailure  Outcome = "permanent-failure"
)

// Result is the uniform outcome of a Send call.
type Result struct {
	Outcome Outcome
	Detail  string
}

// Provider is a downstream delivery channel (email or webhook). Providers
// hold no shared state and never retry internally — retry policy belongs
// to the flush engine and the pub/sub redelivery mechanism.
type Provider interface {
	Name() string
	Send(ctx context.Context, sub domain.Subscription, subject, body, contentType, sender string) (Result, error)
}
