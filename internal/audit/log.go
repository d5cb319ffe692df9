package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// LogRecorder writes events to a slog.Logger.
type LogRecorder struct {
	logger *slog.Logger
	clock  func() time.Time
}

// NewLogRecorder constructs a LogRecorder. A nil logger uses slog.Default().
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger.With(slog.String("component", "audit")), clock: time.Now}
}

// Record implements Recorder.
func (r *LogRecorder) Record(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = r.clock().UTC()
	}
	attrs := []slog.Attr{
		slog.String("action", e.Action),
		slog.String("entity", e.Entity),
		slog.Time("at", e.At),
	}
	if e.EntityID != "" {
		attrs = append(attrs, slog.String("entity_id", e.EntityID))
	}
	if e.ActorID != uuid.Nil {
		attrs = append(attrs, slog.String("actor_id", e.ActorID.String()))
	}
	for k, v := range e.Meta {
		attrs = append(attrs, slog.Any(k, v))
	}
	r.logger.LogAttrs(ctx, e.Level, "audit event", attrs...)
}
