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

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for input, want := range tests {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q): expected %s got %s", input, want, got)
		}
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	if FromContext(ctx) != slog.Default() {
		t.Fatal("expected default logger without a scoped one")
	}

	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	ctx = WithLogger(ctx, logger)
	if FromContext(ctx) != logger {
		t.Fatal("expected scoped logger")
	}

	ctx = WithRequestID(ctx, "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected req-1 got %q", got)
	}
	if got := RequestIDFromContext(WithRequestID(context.Background(), "")); got != "" {
		t.Fatalf("expected empty request id got %q", got)
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestStartSpanNesting(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx, parent := StartSpan(ctx, "outer")
	_, child := StartSpan(ctx, "inner")
	child.Fail(errors.New("boom"))
	child.Fail(errors.New("ignored"))
	child.End()
	parent.End()

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries got %d", len(entries))
	}

	failed, completed := entries[0], entries[1]
	if failed["msg"] != "span failed" || failed["span_name"] != "inner" || failed["error"] != "boom" {
		t.Fatalf("unexpected failure entry %+v", failed)
	}
	if completed["msg"] != "span completed" || completed["span_name"] != "outer" {
		t.Fatalf("unexpected completion entry %+v", completed)
	}
	if failed["trace_id"] != completed["trace_id"] {
		t.Fatal("expected spans to share a trace id")
	}
	if failed["parent_span_id"] != completed["span_id"] {
		t.Fatalf("expected inner span to reference outer span got %v and %v", failed["parent_span_id"], completed["span_id"])
	}
}
