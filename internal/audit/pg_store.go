package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keystone-admin/keystone/internal/platform/db"
)

// PurgeBatch caps rows removed per DELETE so retention never holds a long lock.
const PurgeBatch = 5000

const (
	insertEventSQL = `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`
	purgeBatchSQL = `DELETE FROM audit_logs WHERE id IN (
	SELECT id FROM audit_logs WHERE occurred_at < $1 ORDER BY id LIMIT $2)`
)

// PGStore persists events in audit_logs.
type PGStore struct {
	q db.Querier
}

// NewPGStore wraps a pool or transaction.
func NewPGStore(q db.Querier) *PGStore {
	return &PGStore{q: q}
}

// Insert writes one event. Action and entity are required; a zero At falls
// back to the database clock.
func (s *PGStore) Insert(ctx context.Context, e Event) error {
	if e.Action == "" || e.Entity == "" {
		return errors.New("audit: action and entity required")
	}
	meta := e.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("audit: encode meta: %w", err)
	}
	var actor *uuid.UUID
	if e.ActorID != uuid.Nil {
		actor = &e.ActorID
	}
	var at *time.Time
	if !e.At.IsZero() {
		at = &e.At
	}
	if _, err := s.q.Exec(ctx, insertEventSQL, actor, e.Action, e.Entity, e.EntityID, raw, at); err != nil {
		return fmt.Errorf("audit: insert %s: %w", e.Action, db.MapError(err))
	}
	return nil
}

// Purge deletes rows older than cutoff in PurgeBatch chunks and returns the
// total removed. Rows already deleted stay deleted if ctx ends midway.
func (s *PGStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for {
		tag, err := s.q.Exec(ctx, purgeBatchSQL, cutoff, PurgeBatch)
		if err != nil {
			return total, fmt.Errorf("audit: purge: %w", db.MapError(err))
		}
		total += tag.RowsAffected()
		if tag.RowsAffected() < PurgeBatch {
			return total, nil
		}
	}
}
