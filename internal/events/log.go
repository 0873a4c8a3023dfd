package events

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogBackend writes events to the structured log. It is the default when no
// broker is configured.
type LogBackend struct {
	logger *slog.Logger
}

// NewLogBackend constructs a LogBackend.
func NewLogBackend(logger *slog.Logger) *LogBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogBackend{logger: logger}
}

// Publish logs the event payload.
func (l *LogBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	id := uuid.NewString()
	l.logger.Info("relationship event",
		slog.String("channel", channel),
		slog.String("messageId", id),
		slog.String("type", attrs["type"]),
		slog.String("payload", string(data)),
	)
	return id, nil
}

// Close is a no-op.
func (l *LogBackend) Close() error {
	return nil
}
