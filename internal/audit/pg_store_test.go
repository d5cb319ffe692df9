package audit

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/keystone-admin/keystone/internal/platform/db"
	"github.com/keystone-admin/keystone/internal/shared"
)

type execCall struct {
	sql  string
	args []any
}

// scriptedExec answers Exec with queued row counts.
type scriptedExec struct {
	db.Querier
	calls []execCall
	rows  []int64
	err   error
}

func (s *scriptedExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, execCall{sql: sql, args: args})
	if s.err != nil {
		return pgconn.CommandTag{}, s.err
	}
	var n int64
	if len(s.rows) > 0 {
		n, s.rows = s.rows[0], s.rows[1:]
	}
	return pgconn.NewCommandTag("DELETE " + strconv.FormatInt(n, 10)), nil
}

func TestPGStoreInsert(t *testing.T) {
	q := &scriptedExec{}
	store := NewPGStore(q)
	actor := uuid.New()
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(context.Background(), Event{
		Action: ActionRoleAssigned, Entity: "user_roles", EntityID: "u-1",
		ActorID: actor, Meta: map[string]any{"role": "admin"}, At: at,
	}))
	require.Len(t, q.calls, 1)
	args := q.calls[0].args
	require.Equal(t, &actor, args[0])
	require.Equal(t, ActionRoleAssigned, args[1])
	require.JSONEq(t, `{"role":"admin"}`, string(args[4].([]byte)))
	require.Equal(t, &at, args[5])

	require.NoError(t, store.Insert(context.Background(), Event{Action: ActionLoginFailed, Entity: "users"}))
	args = q.calls[1].args
	require.Nil(t, args[0].(*uuid.UUID))
	require.Equal(t, "{}", string(args[4].([]byte)))
	require.Nil(t, args[5].(*time.Time))

	require.Error(t, store.Insert(context.Background(), Event{Entity: "users"}))
	require.Len(t, q.calls, 2)
}

func TestPGStoreInsertMapsDeadline(t *testing.T) {
	store := NewPGStore(&scriptedExec{err: context.DeadlineExceeded})
	err := store.Insert(context.Background(), Event{Action: ActionLogout, Entity: "users"})
	require.ErrorIs(t, err, shared.ErrTransient)
}

func TestPGStorePurgeBatches(t *testing.T) {
	q := &scriptedExec{rows: []int64{PurgeBatch, PurgeBatch, 12}}
	cutoff := time.Now().Add(-time.Hour)

	removed, err := NewPGStore(q).Purge(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(2*PurgeBatch+12), removed)
	require.Len(t, q.calls, 3)
	require.Equal(t, []any{cutoff, PurgeBatch}, q.calls[0].args)
}

func TestPGStorePurgeStopsOnError(t *testing.T) {
	q := &scriptedExec{err: errors.New("connection reset")}
	removed, err := NewPGStore(q).Purge(context.Background(), time.Now())
	require.ErrorContains(t, err, "audit: purge")
	require.Zero(t, removed)
	require.Len(t, q.calls, 1)
}
