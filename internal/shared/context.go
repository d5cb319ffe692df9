package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Principal is the identity resolved from a valid bearer token.
type Principal struct {
	UserID   uuid.UUID
	Email    string
	Username string
	FullName string
	TokenID  string
	// TokenExpiresAt is the exp claim of the presented token.
	TokenExpiresAt time.Time
	Permissions    []string
}

// Has reports whether the principal holds the permission.
func (p *Principal) Has(permission string) bool {
	if p == nil {
		return false
	}
	for _, granted := range p.Permissions {
		if granted == permission {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
