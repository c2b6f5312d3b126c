package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/CyberwizD/notification-delivery-service/internal/domain"
)

// WebhookProvider POSTs a JSON body to a subscription's slack_webhook_url.
// Structurally this mirrors the teacher's FCMProvider: a struct holding a
// timeout-bound *http.Client, a Name(), and a Send() that builds the
// request by hand and classifies the response status code.
type WebhookProvider struct {
	client  *http.Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewWebhookProvider returns a WebhookProvider with the given per-request
// timeout (30s per §4.3 when zero).
func NewWebhookProvider(timeout time.Duration, logger *slog.Logger) *WebhookProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookProvider{
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		timeout: timeout,
	}
}

func (p *WebhookProvider) Name() string { return "webhook" }

type webhookPayload struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
	Sender  string `json:"sender"`
}

// Send issues POST slack_webhook_url with {subject, message, sender} and
// classifies the response: 2xx delivered, 4xx (except 408/429) permanent,
// 5xx/408/429/connection errors/timeouts transient.
func (p *WebhookProvider) Send(ctx context.Context, sub domain.Subscription, subject, body, _ string, sender string) (Result, error) {
	if sub.SlackWebhookURL == "" {
		return Result{Outcome: PermanentFailure, Detail: "subscription has no slack_webhook_url"}, fmt.Errorf("webhook: no url configured")
	}

	payload, err := json.Marshal(webhookPayload{Subject: subject, Message: body, Sender: sender})
	if err != nil {
		return Result{Outcome: PermanentFailure, Detail: err.Error()}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.SlackWebhookURL, bytes.NewReader(payload))
	if err != nil {
		return Result{Outcome: PermanentFailure, Detail: err.Error()}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("webhook send failed", slog.Any("error", err), slog.String("subscription_id", sub.SubscriptionID))
		return Result{Outcome: TransientFailure, Detail: err.Error()}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Result{Outcome: Delivered}, nil
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return Result{Outcome: TransientFailure, Detail: fmt.Sprintf("webhook status %d", resp.StatusCode)},
			fmt.Errorf("webhook: transient status %d", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Result{Outcome: PermanentFailure, Detail: fmt.Sprintf("webhook status %d", resp.StatusCode)},
			fmt.Errorf("webhook: permanent status %d", resp.StatusCode)
	default:
		return Result{Outcome: TransientFailure, Detail: fmt.Sprintf("webhook status %d", resp.StatusCode)},
			fmt.Errorf("webhook: transient status %d", resp.StatusCode)
	}
}
