package audit

import (
	"context"
	"log/slog"
	"time"
)

// Enqueuer hands an event to the background worker for persistence.
type Enqueuer interface {
	EnqueueAudit(ctx context.Context, e Event) error
}

// QueueRecorder logs every event and forwards it to an Enqueuer.
type QueueRecorder struct {
	log      Recorder
	enqueuer Enqueuer
	logger   *slog.Logger
	timeout  time.Duration
	clock    func() time.Time
}

// NewQueueRecorder constructs a QueueRecorder.
func NewQueueRecorder(enqueuer Enqueuer, logger *slog.Logger) *QueueRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueRecorder{
		log:      NewLogRecorder(logger),
		enqueuer: enqueuer,
		logger:   logger,
		timeout:  time.Second,
		clock:    time.Now,
	}
}

// Record implements Recorder. The enqueue runs detached from the request's
// cancellation but bounded by its own timeout.
func (r *QueueRecorder) Record(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = r.clock().UTC()
	}
	r.log.Record(ctx, e)
	if r.enqueuer == nil {
		return
	}
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.enqueuer.EnqueueAudit(qctx, e); err != nil {
		r.logger.Warn("audit enqueue", slog.String("action", e.Action), slog.Any("error", err))
	}
}
