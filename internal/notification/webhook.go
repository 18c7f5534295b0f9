package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier POSTs alerts as JSON to an operator-supplied endpoint,
// typically a Slack/Discord relay or an internal alert router.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// webhookPayload is the wire shape. The alert keeps its JSON field names so a
// receiver can decode it with the engine's own types.
type webhookPayload struct {
	Source string `json:"source"`
	SentAt string `json:"sent_at"`
	Alert  Alert  `json:"alert"`
}

// NewWebhookNotifier creates a notifier that POSTs each alert to url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers one alert. Any 2xx response counts as delivered; the level is
// mirrored into a header so receivers can route without parsing the body.
func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{
		Source: "smc-engine",
		SentAt: time.Now().UTC().Format(time.RFC3339Nano),
		Alert:  alert,
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Alert-Level", string(alert.Level))

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
