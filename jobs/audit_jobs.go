package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/keystone-admin/keystone/internal/audit"
	jobmetrics "github.com/keystone-admin/keystone/internal/jobs"
)

// AuditStore persists and prunes audit rows; audit.PGStore implements it.
type AuditStore interface {
	Insert(ctx context.Context, e audit.Event) error
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditJob handles the audit record and purge tasks. Per-task counters come
// from the worker's metrics middleware; Metrics only tracks purged rows.
type AuditJob struct {
	Store   AuditStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAuditJob initialises the audit handlers.
func NewAuditJob(store AuditStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditJob {
	return &AuditJob{
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// HandleRecord writes one queued event to audit_logs.
func (j *AuditJob) HandleRecord(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("audit record: handler not configured")
	}
	var e audit.Event
	if err := json.Unmarshal(t.Payload(), &e); err != nil {
		return fmt.Errorf("audit record: decode: %v: %w", err, asynq.SkipRetry)
	}
	if e.Action == "" || e.Entity == "" {
		return fmt.Errorf("audit record: action and entity required: %w", asynq.SkipRetry)
	}
	return j.Store.Insert(ctx, e)
}

// HandlePurge deletes rows older than the payload's retention window.
func (j *AuditJob) HandlePurge(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("audit purge: handler not configured")
	}
	var payload AuditPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("audit purge: decode: %v: %w", err, asynq.SkipRetry)
	}
	if payload.RetentionHours <= 0 {
		return fmt.Errorf("audit purge: retention must be positive: %w", asynq.SkipRetry)
	}
	cutoff := j.clock().Add(-time.Duration(payload.RetentionHours) * time.Hour)
	removed, err := j.Store.Purge(ctx, cutoff)
	if err != nil {
		j.logger().Error("audit purge failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddPurged(removed)
	j.logger().Info("audit purge completed",
		slog.Time("cutoff", cutoff),
		slog.Int64("removed", removed),
	)
	return nil
}

func (j *AuditJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
