// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context and provides
// correlation ID propagation through context.Context, so every event a setup
// produces — sweep, FVG, lock, order — can be traced end to end.
package logger

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

type ctxKey string

const correlationIDKey ctxKey = "correlation_id"

// CorrelationKey is the slog attribute key for correlation IDs.
const CorrelationKey = "correlation_id"

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// WithCorrelationID stores a correlation ID in the context for downstream
// propagation.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID extracts the correlation ID from context. Returns "" if not set.
func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

// NewCorrelationID creates a fresh random correlation ID.
func NewCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelation returns slog attributes including the correlation ID from
// context. Usage: slog.Info("msg", logger.WithCorrelation(ctx)...)
func WithCorrelation(ctx context.Context) []any {
	if id := CorrelationID(ctx); id != "" {
		return []any{slog.String(CorrelationKey, id)}
	}
	return nil
}
