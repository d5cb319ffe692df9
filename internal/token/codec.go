// Package token issues and decodes the signed bearer tokens handed to clients
// after login.
//
// Tokens are HS256 JWTs signed with one process-wide secret. Rotating the
// secret invalidates every token issued under the old one; that is an
// operational event (redeploy with new config), not something the codec
// tracks. The registered iat and exp claims carry whole seconds for other JWT
// readers; iat_ns and exp_ns carry the exact instants and drive expiry.
//
// There is no revocation list in the codec. A token stays valid until it
// expires even after the holder logs out. The optional denylist in
// internal/auth layers revocation on top by token id.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTTL is the token lifetime used when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrInvalidSignature covers signature mismatch and malformed tokens.
	ErrInvalidSignature = errors.New("token: invalid signature")
	// ErrExpired is returned when expires-at is not after the decode time.
	ErrExpired = errors.New("token: expired")
)

// Claims is the decoded content of a token.
type Claims struct {
	Subject     uuid.UUID
	ID          string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Roles       []string
	Permissions []string
}

// Snapshot is an optional copy of the principal's grants embedded for
// clients. Authorization never reads it back.
type Snapshot struct {
	Roles       []string
	Permissions []string
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"perms,omitempty"`
	IssuedNano  int64    `json:"iat_ns,omitempty"`
	ExpiresNano int64    `json:"exp_ns,omitempty"`
}

// instants prefers the nanosecond claims and falls back to the registered
// seconds for tokens minted without them.
func (c jwtClaims) instants() (issued, expires time.Time) {
	issued, expires = c.IssuedAt.Time, c.ExpiresAt.Time
	if c.IssuedNano != 0 {
		issued = time.Unix(0, c.IssuedNano)
	}
	if c.ExpiresNano != 0 {
		expires = time.Unix(0, c.ExpiresNano)
	}
	return issued.UTC(), expires.UTC()
}

// Codec signs and verifies tokens with a single symmetric secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
	parser *jwt.Parser
}

// NewCodec constructs a Codec. ttl <= 0 selects DefaultTTL.
func NewCodec(secret string, ttl time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token: signing secret required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// TTL returns the configured default lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for subject valid from now for ttl. ttl <= 0 uses the
// codec default.
func (c *Codec) Issue(subject uuid.UUID, now time.Time, ttl time.Duration) (string, error) {
	return c.IssueWithSnapshot(subject, now, ttl, Snapshot{})
}

// IssueWithSnapshot is Issue with roles and permissions embedded.
func (c *Codec) IssueWithSnapshot(subject uuid.UUID, now time.Time, ttl time.Duration, snap Snapshot) (string, error) {
	if subject == uuid.Nil {
		return "", errors.New("token: subject required")
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	issued := now.UTC()
	expires := issued.Add(ttl)
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Roles:       snap.Roles,
		Permissions: snap.Permissions,
		IssuedNano:  issued.UnixNano(),
		ExpiresNano: expires.UnixNano(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature, then checks expiry against now.
func (c *Codec) Decode(raw string, now time.Time) (Claims, error) {
	var parsed jwtClaims
	tok, err := c.parser.ParseWithClaims(raw, &parsed, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalidSignature
	}
	if parsed.ExpiresAt == nil || parsed.IssuedAt == nil {
		return Claims{}, ErrInvalidSignature
	}
	subject, err := uuid.Parse(parsed.Subject)
	if err != nil {
		return Claims{}, ErrInvalidSignature
	}
	if parsed.ExpiresNano != 0 && parsed.ExpiresNano/int64(time.Second) != parsed.ExpiresAt.Unix() {
		return Claims{}, ErrInvalidSignature
	}
	issued, expires := parsed.instants()
	if !expires.After(now) {
		return Claims{}, ErrExpired
	}
	return Claims{
		Subject:     subject,
		ID:          parsed.ID,
		IssuedAt:    issued,
		ExpiresAt:   expires,
		Roles:       parsed.Roles,
		Permissions: parsed.Permissions,
	}, nil
}
