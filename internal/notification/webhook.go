package notification

import (
	"context"
	"fmt"
	"log"
	"time"
)

// WebhookNotifier POSTs each alert as JSON, stamped with the send time.
type WebhookNotifier struct {
	url string
	now func() time.Time
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{url: url, now: time.Now}
}

type webhookPayload struct {
	Alert
	Source string `json:"source"`
	TS     string `json:"ts"`
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	payload := webhookPayload{
		Alert:  alert,
		Source: "signalopt",
		TS:     w.now().UTC().Format(time.RFC3339Nano),
	}
	if err := postJSON(ctx, defaultClient, w.url, payload); err != nil {
		return fmt.Errorf("webhook %s: %w", alert.Title, err)
	}
	log.Printf("[webhook] delivered %q", alert.Title)
	return nil
}
