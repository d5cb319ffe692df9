package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// User represents an account that can authenticate.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	FullName     string     `json:"full_name"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	RoleID       *uuid.UUID `json:"role_id,omitempty"`
	Permissions  []string   `json:"permissions,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsActive reports whether the user may hold a token.
func IsActive(u *User) bool {
	return u != nil && u.IsActive
}

// FoldIdentifier normalises an email or username for storage and lookup.
func FoldIdentifier(identifier string) string {
	return cases.Fold().String(strings.TrimSpace(identifier))
}

// PrincipalSummary is the client-facing view of an authenticated user.
type PrincipalSummary struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	FullName    string    `json:"full_name"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
}

// LoginResult is returned by Login and Refresh.
type LoginResult struct {
	Token     string           `json:"token"`
	TokenType string           `json:"token_type"`
	ExpiresAt time.Time        `json:"expires_at"`
	Principal PrincipalSummary `json:"principal"`
}

// LoginMeta carries request attributes recorded with login attempts.
type LoginMeta struct {
	IP        string
	UserAgent string
}
