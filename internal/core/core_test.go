package core

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestEnsureCallID(t *testing.T) {
	t.Parallel()

	ctx, id := EnsureCallID(context.Background())
	if id == "" || CallIDFromContext(ctx) != id {
		t.Fatalf("EnsureCallID() id = %q, ctx id = %q", id, CallIDFromContext(ctx))
	}
	again, id2 := EnsureCallID(ctx)
	if id2 != id || CallIDFromContext(again) != id {
		t.Fatalf("EnsureCallID() replaced existing id %q with %q", id, id2)
	}
}

func TestLoggerFromContext(t *testing.T) {
	t.Parallel()

	fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if got := LoggerFromContext(context.Background(), fallback); got != fallback {
		t.Fatalf("expected fallback logger")
	}
	attached := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), attached)
	if got := LoggerFromContext(ctx, fallback); got != attached {
		t.Fatalf("expected context logger")
	}
	if got := LoggerFromContext(context.Background(), nil); got != slog.Default() {
		t.Fatalf("expected slog.Default()")
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"k":"v"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
	if _, err := NewLogger(&buf, "loud", "text"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := NewLogger(&buf, "info", "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
