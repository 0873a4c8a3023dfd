package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span times one domain operation and tags every log line written inside it.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
}

// StartSpan derives a logger tagged with a fresh span id, the operation name
// and, when nested, the parent span id.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	spanID := uuid.NewString()
	logger := FromContext(ctx).With(slog.String("span_id", spanID), slog.String("op", name))
	if parent := spanIDFromContext(ctx); parent != "" {
		logger = logger.With(slog.String("parent_span_id", parent))
	}

	ctx = context.WithValue(WithLogger(ctx, logger), spanIDKey, spanID)
	return ctx, &Span{name: name, logger: logger, start: time.Now()}
}

// End logs how long the operation took. A non-nil err is reported at warn level.
func (s *Span) End(err error) {
	if s == nil {
		return
	}
	elapsed := slog.Duration("duration", time.Since(s.start))
	if err != nil {
		s.logger.Warn("operation failed", elapsed, slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("operation completed", elapsed)
}
