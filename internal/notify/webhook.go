// Package notify posts High-priority incident alerts to a chat webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"dispatch_triage/formatting"
)

// Webhook posts GroupMe-style {"text", "bot_id"} payloads.
type Webhook struct {
	url    string
	botID  string
	client *http.Client
}

// NewWebhook returns a notifier; an empty url disables delivery.
func NewWebhook(url, botID string, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{url: url, botID: botID, client: client}
}

// Enabled reports whether a destination is configured.
func (w *Webhook) Enabled() bool { return w != nil && w.url != "" }

// Notify renders alert and posts it.
func (w *Webhook) Notify(ctx context.Context, alert formatting.IncidentAlert) error {
	if !w.Enabled() {
		return nil
	}
	payload := map[string]string{"text": formatting.BuildIncidentAlert(alert)}
	if w.botID != "" {
		payload["bot_id"] = w.botID
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
