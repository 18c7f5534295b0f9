package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestCorrelationID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No correlation ID set
	if id := CorrelationID(ctx); id != "" {
		t.Errorf("expected empty correlation id, got %q", id)
	}

	// Set and retrieve
	ctx = WithCorrelationID(ctx, "corr-123")
	if id := CorrelationID(ctx); id != "corr-123" {
		t.Errorf("expected 'corr-123', got %q", id)
	}
}

func TestNewCorrelationID(t *testing.T) {
	a := NewCorrelationID()
	b := NewCorrelationID()
	if a == "" || b == "" {
		t.Fatal("expected non-empty correlation ids")
	}
	if a == b {
		t.Error("correlation ids must be unique")
	}
}

func TestWithCorrelation(t *testing.T) {
	ctx := context.Background()

	// No correlation ID
	attrs := WithCorrelation(ctx)
	if attrs != nil {
		t.Errorf("expected nil attrs when no correlation id, got %v", attrs)
	}

	// With correlation ID — returns a single slog attribute
	ctx = WithCorrelationID(ctx, "abc-123")
	attrs = WithCorrelation(ctx)
	if len(attrs) == 0 {
		t.Fatal("expected non-empty attrs with correlation id set")
	}
}
