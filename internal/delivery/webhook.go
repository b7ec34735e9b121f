package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Simplici0/quotewizard/internal/apperr"
	"github.com/Simplici0/quotewizard/internal/tenant"
)

// EventQuoteSubmitted is the event name sent with every webhook payload.
const EventQuoteSubmitted = "quote.submitted"

// Webhook POSTs submissions as JSON to the tenant's webhook URL.
type Webhook struct {
	client *http.Client
}

// NewWebhook returns a webhook target whose requests time out after timeout.
func NewWebhook(timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{client: &http.Client{Timeout: timeout}}
}

type webhookPayload struct {
	Event      string     `json:"event"`
	DeliveryID string     `json:"deliveryId"`
	Submission Submission `json:"submission"`
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Enabled(t tenant.Tenant) bool { return t.WebhookURL != "" }

func (w *Webhook) Deliver(ctx context.Context, t tenant.Tenant, sub Submission) (Receipt, error) {
	deliveryID := uuid.NewString()
	body, err := json.Marshal(webhookPayload{Event: EventQuoteSubmitted, DeliveryID: deliveryID, Submission: sub})
	if err != nil {
		return Receipt{}, fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, apperr.Config(fmt.Sprintf("tenant %s webhook url", t.ID), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Quote-Event", EventQuoteSubmitted)
	req.Header.Set("X-Quote-Delivery", deliveryID)

	resp, err := w.client.Do(req)
	if err != nil {
		return Receipt{}, apperr.Upstream("post webhook", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Receipt{}, apperr.Upstream(fmt.Sprintf("webhook returned %d", resp.StatusCode), nil)
	}
	return Receipt{Target: w.Name()}, nil
}
