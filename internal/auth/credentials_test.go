package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/keystone-admin/keystone/internal/auth"
	"github.com/keystone-admin/keystone/internal/platform/memdb"
	"github.com/keystone-admin/keystone/internal/shared"
)

func seedAccount(t *testing.T, store *memdb.Store, email, username, secret string, active bool) *auth.User {
	t.Helper()
	hash, err := auth.HashSecret(secret)
	require.NoError(t, err)
	now := time.Now().UTC()
	user, err := store.CreateUser(context.Background(), auth.User{
		ID:           uuid.New(),
		Email:        auth.FoldIdentifier(email),
		Username:     auth.FoldIdentifier(username),
		PasswordHash: hash,
		IsActive:     active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil, uuid.Nil)
	require.NoError(t, err)
	return user
}

func TestHashSecretLimits(t *testing.T) {
	_, err := auth.HashSecret("")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = auth.HashSecret(strings.Repeat("a", auth.MaxSecretBytes+1))
	require.ErrorIs(t, err, shared.ErrValidation)

	hash, err := auth.HashSecret(strings.Repeat("a", auth.MaxSecretBytes))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$2"))
}

func TestFoldIdentifier(t *testing.T) {
	require.Equal(t, "admin@example.com", auth.FoldIdentifier("  Admin@Example.COM "))
	require.Equal(t, auth.FoldIdentifier("STRASSE"), auth.FoldIdentifier("strasse"))
}

func TestCredentialStoreVerify(t *testing.T) {
	store := memdb.New()
	user := seedAccount(t, store, "Alice@example.com", "alice", "correct horse", true)
	creds := auth.NewCredentialStore(store)
	ctx := context.Background()

	got, err := creds.Verify(ctx, "ALICE@example.com", "correct horse")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	got, err = creds.Verify(ctx, "alice", "correct horse")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	_, err = creds.Verify(ctx, "alice", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = creds.Verify(ctx, "nobody", "correct horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestCredentialStoreRejectsOverlongSecret(t *testing.T) {
	store := memdb.New()
	secret := strings.Repeat("p", auth.MaxSecretBytes)
	seedAccount(t, store, "long@example.com", "long", secret, true)
	creds := auth.NewCredentialStore(store)
	ctx := context.Background()

	_, err := creds.Verify(ctx, "long", secret)
	require.NoError(t, err)

	_, err = creds.Verify(ctx, "long", secret+"x")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestCredentialStoreReturnsInactiveUsers(t *testing.T) {
	store := memdb.New()
	seedAccount(t, store, "off@example.com", "off", "secret-123", false)

	got, err := auth.NewCredentialStore(store).Verify(context.Background(), "off", "secret-123")
	require.NoError(t, err)
	require.False(t, auth.IsActive(got))
	require.False(t, auth.IsActive(nil))
}
