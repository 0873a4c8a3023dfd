package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Fatal("expected default logger without a stored logger")
	}

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if FromContext(WithLogger(context.Background(), logger)) != logger {
		t.Fatal("expected stored logger")
	}
	if got := RequestIDFromContext(WithRequestID(context.Background(), "req-1")); got != "req-1" {
		t.Fatalf("expected request id, got %q", got)
	}
}

func TestStartSpanNestsAndReportsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := WithLogger(context.Background(), logger)

	ctx, outer := StartSpan(ctx, "outer")
	_, inner := StartSpan(ctx, "inner")
	inner.End(errors.New("boom"))
	outer.End(nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two log lines, got %d: %s", len(lines), buf.String())
	}

	var innerEntry, outerEntry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &innerEntry); err != nil {
		t.Fatalf("decode inner: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &outerEntry); err != nil {
		t.Fatalf("decode outer: %v", err)
	}

	if innerEntry["level"] != "WARN" || innerEntry["error"] != "boom" || innerEntry["op"] != "inner" {
		t.Fatalf("unexpected inner entry: %v", innerEntry)
	}
	if innerEntry["parent_span_id"] != outerEntry["span_id"] {
		t.Fatalf("expected inner span to reference outer span: %v %v", innerEntry, outerEntry)
	}
	if outerEntry["level"] != "DEBUG" {
		t.Fatalf("expected successful span at debug level, got %v", outerEntry["level"])
	}

	var nilSpan *Span
	nilSpan.End(nil)
}
