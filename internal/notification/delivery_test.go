package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTelegramNotifier_Send(t *testing.T) {
	var got struct {
		ChatID    string `json:"chat_id"`
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "-100123")
	n.apiBase = srv.URL

	err := n.Send(context.Background(), Alert{
		Level:   AlertWarning,
		Title:   "Order rejected: EURUSD",
		Message: "margin <insufficient>",
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if got.ChatID != "-100123" {
		t.Errorf("expected chat id -100123, got %q", got.ChatID)
	}
	if got.ParseMode != "HTML" {
		t.Errorf("expected HTML parse mode, got %q", got.ParseMode)
	}
	if !strings.Contains(got.Text, "[WARNING]") {
		t.Errorf("level must prefix the message, got %q", got.Text)
	}
	if !strings.Contains(got.Text, "&lt;insufficient&gt;") {
		t.Errorf("message must be HTML-escaped, got %q", got.Text)
	}
}

func TestTelegramNotifier_SurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "nope")
	n.apiBase = srv.URL

	err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "t", Message: "m"})
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("expected the API description in the error, got %v", err)
	}
}

func TestWebhookNotifier_Send(t *testing.T) {
	var payload webhookPayload
	var level string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		level = r.Header.Get("X-Alert-Level")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{
		Level:   AlertInfo,
		Title:   "Order placed: EURUSD",
		Message: "SELL EURUSD 0.10 lots at 1.10300",
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if payload.Source != "smc-engine" {
		t.Errorf("expected source smc-engine, got %q", payload.Source)
	}
	if payload.Alert.Title != "Order placed: EURUSD" {
		t.Errorf("alert not round-tripped: %+v", payload.Alert)
	}
	if payload.SentAt == "" {
		t.Error("expected a send timestamp")
	}
	if level != "INFO" {
		t.Errorf("expected X-Alert-Level INFO, got %q", level)
	}
}

func TestWebhookNotifier_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{Level: AlertCritical, Title: "t", Message: "m"})
	if err == nil {
		t.Error("expected an error on a 5xx response")
	}
}
