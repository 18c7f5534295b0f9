package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"time"
)

// TelegramNotifier delivers alerts to a Telegram chat through the Bot API.
// Trade alerts are rare enough that each one is a single sendMessage call;
// there is no batching.
type TelegramNotifier struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
}

// NewTelegramNotifier creates a notifier for the given bot token (issued by
// @BotFather) and target chat, group or channel ID.
func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:   token,
		chatID:  chatID,
		apiBase: "https://api.telegram.org",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts one HTML-formatted message. The alert level becomes a visible
// prefix so rejected orders and lock evictions stand out in the chat history.
func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	text := fmt.Sprintf("<b>[%s] %s</b>\n%s",
		alert.Level, html.EscapeString(alert.Title), html.EscapeString(alert.Message))

	body, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// The Bot API reports the cause in the response body; surface it so
		// a bad chat ID is diagnosable from the engine log alone.
		var apiErr struct {
			Description string `json:"description"`
		}
		if data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10)); len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Description != "" {
			return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, apiErr.Description)
		}
		return fmt.Errorf("telegram: status %d", resp.StatusCode)
	}
	return nil
}
