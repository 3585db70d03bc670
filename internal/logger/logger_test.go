package logger

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestBatchIDRoundTrip(t *testing.T) {
	ctx := context.Background()

	if got := BatchID(ctx); got != "" {
		t.Errorf("expected empty batch ID on fresh context, got %q", got)
	}

	ctx = WithBatchID(ctx, "batch-42")
	if got := BatchID(ctx); got != "batch-42" {
		t.Errorf("expected batch-42, got %q", got)
	}
}

func TestWithTrace(t *testing.T) {
	ctx := context.Background()
	if attrs := WithTrace(ctx); attrs != nil {
		t.Errorf("expected nil attrs without batch ID, got %v", attrs)
	}

	ctx = WithBatchID(ctx, "batch-7")
	attrs := WithTrace(ctx)
	if len(attrs) != 1 {
		t.Fatalf("expected 1 attr, got %d", len(attrs))
	}
}

func TestGenerateBatchID(t *testing.T) {
	ts := time.Unix(1700000000, 123)
	id := GenerateBatchID(ts)
	want := "batch-1700000000000000123"
	if id != want {
		t.Errorf("expected %s, got %s", want, id)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, c := range cases {
		if got := ParseLevel(c.in); got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
