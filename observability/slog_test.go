package observability

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSlogLoggerEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	l.With(String("component", "render")).Info("pass done", Int("pass", 2))
	out := buf.String()
	if !strings.Contains(out, "pass done") {
		t.Fatalf("message missing: %q", out)
	}
	if !strings.Contains(out, "component=render") || !strings.Contains(out, "pass=2") {
		t.Fatalf("fields missing: %q", out)
	}
}

func TestSlogLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	l.Debug("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("debug leaked at info level: %q", buf.String())
	}
}
