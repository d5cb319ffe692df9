package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/keystone-admin/keystone/internal/audit"
	jobmetrics "github.com/keystone-admin/keystone/internal/jobs"
)

type fakeAuditStore struct {
	records []audit.Event
	cutoff  time.Time
	purged  int64
	err     error
}

func (f *fakeAuditStore) Insert(_ context.Context, e audit.Event) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, e)
	return nil
}

func (f *fakeAuditStore) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.purged, f.err
}

func newAuditJob(store AuditStore) *AuditJob {
	return NewAuditJob(store, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func TestAuditRecordPersistsEvent(t *testing.T) {
	store := &fakeAuditStore{}
	actor := uuid.New()
	task, err := NewAuditRecordTask(audit.Event{
		Action:   audit.ActionRoleAssigned,
		Entity:   "user_roles",
		EntityID: "u-1",
		ActorID:  actor,
		Meta:     map[string]any{"role_id": "r-1"},
		At:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NoError(t, newAuditJob(store).HandleRecord(context.Background(), task))
	require.Len(t, store.records, 1)
	rec := store.records[0]
	require.Equal(t, actor, rec.ActorID)
	require.Equal(t, audit.ActionRoleAssigned, rec.Action)
	require.Equal(t, "r-1", rec.Meta["role_id"])
	require.True(t, rec.At.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestAuditRecordSkipsRetryOnBadPayload(t *testing.T) {
	job := newAuditJob(&fakeAuditStore{})
	err := job.HandleRecord(context.Background(), asynq.NewTask(TaskAuditRecord, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.HandleRecord(context.Background(), asynq.NewTask(TaskAuditRecord, []byte(`{"entity":"users"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAuditRecordPropagatesStoreError(t *testing.T) {
	boom := errors.New("db down")
	task, err := NewAuditRecordTask(audit.Event{Action: audit.ActionLogout, Entity: "users"})
	require.NoError(t, err)
	require.ErrorIs(t, newAuditJob(&fakeAuditStore{err: boom}).HandleRecord(context.Background(), task), boom)
}

func TestAuditPurgeUsesRetentionWindow(t *testing.T) {
	store := &fakeAuditStore{purged: 4}
	job := newAuditJob(store)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }

	task, err := NewAuditPurgeTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.HandlePurge(context.Background(), task))
	require.Equal(t, now.Add(-48*time.Hour), store.cutoff)
}

func TestNewAuditPurgeTaskRejectsShortRetention(t *testing.T) {
	_, err := NewAuditPurgeTask(10 * time.Minute)
	require.Error(t, err)
}
