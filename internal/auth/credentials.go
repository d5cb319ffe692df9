package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/keystone-admin/keystone/internal/shared"
)

// MaxSecretBytes is the longest secret bcrypt accepts.
const MaxSecretBytes = 72

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// unknownUserHash is compared against when the identifier is unknown so both
// paths pay for one bcrypt run.
func unknownUserHash() []byte {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("keystone-unknown-user"), bcrypt.DefaultCost)
	})
	return dummyHash
}

// HashSecret returns the bcrypt hash of a secret.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: secret required", shared.ErrValidation)
	}
	if len(secret) > MaxSecretBytes {
		return "", fmt.Errorf("%w: secret longer than %d bytes", shared.ErrValidation, MaxSecretBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash secret: %w", err)
	}
	return string(hash), nil
}

// CredentialStore verifies identifier/secret pairs.
type CredentialStore struct {
	repo Repository
}

// NewCredentialStore constructs a CredentialStore.
func NewCredentialStore(repo Repository) *CredentialStore {
	return &CredentialStore{repo: repo}
}

// Verify returns the user owning identifier when secret matches. Unknown
// identifiers and wrong secrets both yield shared.ErrInvalidCredentials.
// Inactive users are returned; callers check IsActive. Secrets longer than
// MaxSecretBytes never match, since bcrypt would only compare their prefix.
func (c *CredentialStore) Verify(ctx context.Context, identifier, secret string) (*User, error) {
	user, err := c.repo.FindByIdentifier(ctx, FoldIdentifier(identifier))
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(unknownUserHash(), []byte(secret))
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	if len(secret) > MaxSecretBytes {
		_ = bcrypt.CompareHashAndPassword(unknownUserHash(), []byte(secret[:MaxSecretBytes]))
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(secret)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}
