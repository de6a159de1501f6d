package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span times one operation and logs its outcome once.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
	failed bool
}

// StartSpan derives a child span from ctx. The returned context carries a
// logger tagged with the trace, span and parent span ids.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx)

	traceID := stringValue(ctx, traceIDKey)
	if traceID == "" {
		traceID = uuid.NewString()
		ctx = withString(ctx, traceIDKey, traceID)
		logger = logger.With(slog.String("trace_id", traceID))
	}

	spanID := uuid.NewString()
	attrs := []any{slog.String("span_id", spanID), slog.String("span_name", name)}
	if parent := stringValue(ctx, spanIDKey); parent != "" {
		attrs = append(attrs, slog.String("parent_span_id", parent))
	}
	logger = logger.With(attrs...)

	ctx = WithLogger(ctx, logger)
	ctx = withString(ctx, spanIDKey, spanID)

	return ctx, &Span{name: name, logger: logger, start: time.Now()}
}

// Fail records err against the span. Only the first failure is logged.
func (s *Span) Fail(err error) {
	if s == nil || err == nil || s.failed {
		return
	}
	s.failed = true
	s.logger.Error("span failed", slog.Duration("duration", time.Since(s.start)), slog.Any("error", err))
}

// End emits the completion entry for spans that did not fail.
func (s *Span) End() {
	if s == nil || s.failed {
		return
	}
	s.logger.Info("span completed", slog.Duration("duration", time.Since(s.start)))
}
