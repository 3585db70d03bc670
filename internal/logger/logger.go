// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context and propagates a
// per-batch trace ID through context.Context so every log line produced
// while processing one tick batch can be correlated.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type ctxKey string

const batchIDKey ctxKey = "batch_id"

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

// ParseLevel maps a config string to a slog.Level. Unknown values fall
// back to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithBatchID stores a batch trace ID in the context for downstream propagation.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchIDKey, id)
}

// BatchID extracts the batch trace ID from context. Returns "" if not set.
func BatchID(ctx context.Context) string {
	if v, ok := ctx.Value(batchIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateBatchID creates a trace ID for one tick batch.
// Format: "batch-{unixNano}" — lightweight, no UUID dependency.
func GenerateBatchID(ts time.Time) string {
	return fmt.Sprintf("batch-%d", ts.UnixNano())
}

// WithTrace returns slog attributes including the batch ID from context.
// Usage: log.Info("msg", logger.WithTrace(ctx)...)
func WithTrace(ctx context.Context) []any {
	id := BatchID(ctx)
	if id == "" {
		return nil
	}
	return []any{slog.String("batch_id", id)}
}
