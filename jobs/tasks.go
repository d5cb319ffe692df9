package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/keystone-admin/keystone/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit events waiting to be persisted.
	QueueAudit = "audit"
	// TaskAuditRecord persists one audit event.
	TaskAuditRecord = "audit:record"
	// TaskAuditPurge deletes audit rows older than the retention window.
	TaskAuditPurge = "audit:purge"
)

// AuditPurgePayload configures a retention run.
type AuditPurgePayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewAuditRecordTask wraps an audit event in a task.
func NewAuditRecordTask(e audit.Event) (*asynq.Task, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode audit event: %w", err)
	}
	return asynq.NewTask(TaskAuditRecord, data, asynq.Queue(QueueAudit), asynq.MaxRetry(5)), nil
}

// NewAuditPurgeTask builds the retention task.
func NewAuditPurgeTask(retention time.Duration) (*asynq.Task, error) {
	hours := int(retention / time.Hour)
	if hours <= 0 {
		return nil, fmt.Errorf("jobs: retention must be at least one hour, got %s", retention)
	}
	data, err := json.Marshal(AuditPurgePayload{RetentionHours: hours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPurge, data), nil
}
