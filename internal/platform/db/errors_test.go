package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/keystone-admin/keystone/internal/shared"
)

func TestMapError(t *testing.T) {
	require.NoError(t, MapError(nil))
	require.ErrorIs(t, MapError(pgx.ErrNoRows), shared.ErrNotFound)
	require.ErrorIs(t, MapError(fmt.Errorf("scan: %w", context.DeadlineExceeded)), shared.ErrTransient)
	require.ErrorIs(t, MapError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_user_roles"}), shared.ErrConflict)
	require.ErrorIs(t, MapError(&pgconn.PgError{Code: "23503"}), shared.ErrNotFound)

	other := errors.New("boom")
	require.Equal(t, other, MapError(other))
}
