package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// fakeTx implements only the pgx.Tx methods WithTx calls.
type fakeTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeBeginner struct {
	commitErrs []error
	txs        []*fakeTx
	opts       pgx.TxOptions
}

func (b *fakeBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = opts
	tx := &fakeTx{}
	if n := len(b.txs); n < len(b.commitErrs) {
		tx.commitErr = b.commitErrs[n]
	}
	b.txs = append(b.txs, tx)
	return tx, nil
}

func TestWithTxCommits(t *testing.T) {
	b := &fakeBeginner{}
	require.NoError(t, WithTx(context.Background(), b, func(pgx.Tx) error { return nil }))
	require.Len(t, b.txs, 1)
	require.True(t, b.txs[0].committed)
	require.Equal(t, pgx.RepeatableRead, b.opts.IsoLevel)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	b := &fakeBeginner{}
	boom := errors.New("boom")
	require.ErrorIs(t, WithTx(context.Background(), b, func(pgx.Tx) error { return boom }), boom)
	require.Len(t, b.txs, 1)
	require.False(t, b.txs[0].committed)
	require.True(t, b.txs[0].rolledBack)
}

func TestWithTxRetriesSerializationFailures(t *testing.T) {
	conflict := &pgconn.PgError{Code: codeSerializationFailure}
	b := &fakeBeginner{commitErrs: []error{conflict, conflict}}
	runs := 0
	require.NoError(t, WithTx(context.Background(), b, func(pgx.Tx) error {
		runs++
		return nil
	}))
	require.Equal(t, 3, runs)
	require.True(t, b.txs[2].committed)
}

func TestWithTxGivesUpAfterAttempts(t *testing.T) {
	deadlock := &pgconn.PgError{Code: codeDeadlockDetected}
	b := &fakeBeginner{}
	err := WithTx(context.Background(), b, func(pgx.Tx) error {
		return fmt.Errorf("insert: %w", deadlock)
	})
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	require.Len(t, b.txs, txAttempts)
}
