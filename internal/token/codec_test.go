package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	secretA = "k1-0123456789abcdef0123456789abcdef"
	secretB = "k2-0123456789abcdef0123456789abcdef"
)

func newCodec(t *testing.T, secret string) *Codec {
	t.Helper()
	c, err := NewCodec(secret, 0)
	require.NoError(t, err)
	return c
}

func TestNewCodecDefaults(t *testing.T) {
	c := newCodec(t, secretA)
	require.Equal(t, DefaultTTL, c.TTL())
	require.Equal(t, 604800*time.Second, c.TTL())

	_, err := NewCodec("", time.Hour)
	require.Error(t, err)
}

func TestDecodeRoundTripsSubjectAndTimestamps(t *testing.T) {
	c := newCodec(t, secretA)
	subject := uuid.New()
	issued := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	raw, err := c.Issue(subject, issued, time.Hour)
	require.NoError(t, err)

	claims, err := c.Decode(raw, issued.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, subject, claims.Subject)
	assert.Equal(t, issued, claims.IssuedAt)
	assert.Equal(t, issued.Add(time.Hour), claims.ExpiresAt)
	assert.NotEmpty(t, claims.ID)
}

func TestExpiryBoundary(t *testing.T) {
	c := newCodec(t, secretA)
	issued := time.Unix(1_700_000_000, 0)
	ttl := 90 * time.Second

	raw, err := c.Issue(uuid.New(), issued, ttl)
	require.NoError(t, err)

	for _, offset := range []time.Duration{0, time.Second, ttl - time.Second} {
		_, err := c.Decode(raw, issued.Add(offset))
		require.NoError(t, err, "offset %s", offset)
	}
	for _, offset := range []time.Duration{ttl, ttl + time.Second, 48 * time.Hour} {
		_, err := c.Decode(raw, issued.Add(offset))
		require.ErrorIs(t, err, ErrExpired, "offset %s", offset)
	}
}

func TestExpiryBoundarySubSecond(t *testing.T) {
	c := newCodec(t, secretA)
	issued := time.Unix(1_700_000_000, 700_000_000)
	ttl := time.Second

	raw, err := c.Issue(uuid.New(), issued, ttl)
	require.NoError(t, err)

	claims, err := c.Decode(raw, issued.Add(ttl-200*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, issued.Equal(claims.IssuedAt))
	assert.True(t, issued.Add(ttl).Equal(claims.ExpiresAt))

	_, err = c.Decode(raw, issued.Add(ttl-time.Nanosecond))
	require.NoError(t, err)
	for _, offset := range []time.Duration{ttl, ttl + time.Nanosecond, ttl + 300*time.Millisecond} {
		_, err := c.Decode(raw, issued.Add(offset))
		require.ErrorIs(t, err, ErrExpired, "offset %s", offset)
	}
}

func TestDecodeFallsBackToWholeSeconds(t *testing.T) {
	c := newCodec(t, secretA)
	subject := uuid.New()
	claims := jwt.RegisteredClaims{
		Subject:   subject.String(),
		IssuedAt:  jwt.NewNumericDate(time.Unix(1_700_000_000, 0)),
		ExpiresAt: jwt.NewNumericDate(time.Unix(1_700_000_010, 0)),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretA))
	require.NoError(t, err)

	got, err := c.Decode(raw, time.Unix(1_700_000_009, 999_000_000))
	require.NoError(t, err)
	require.Equal(t, subject, got.Subject)
	_, err = c.Decode(raw, time.Unix(1_700_000_010, 0))
	require.ErrorIs(t, err, ErrExpired)
}

func TestDecodeRejectsInconsistentExpiry(t *testing.T) {
	c := newCodec(t, secretA)
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(time.Unix(1_700_000_000, 0)),
			ExpiresAt: jwt.NewNumericDate(time.Unix(1_700_000_010, 0)),
		},
		ExpiresNano: time.Unix(1_800_000_000, 0).UnixNano(),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretA))
	require.NoError(t, err)

	_, err = c.Decode(raw, time.Unix(1_700_000_001, 0))
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestDefaultTTLApplied(t *testing.T) {
	c := newCodec(t, secretA)
	issued := time.Unix(1_700_000_000, 0)
	raw, err := c.Issue(uuid.New(), issued, 0)
	require.NoError(t, err)

	_, err = c.Decode(raw, issued.Add(DefaultTTL-time.Second))
	require.NoError(t, err)
	_, err = c.Decode(raw, issued.Add(DefaultTTL))
	require.ErrorIs(t, err, ErrExpired)
}

func TestDecodeWithOtherSecretFails(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)
	raw, err := newCodec(t, secretA).Issue(uuid.New(), issued, time.Hour)
	require.NoError(t, err)

	_, err = newCodec(t, secretB).Decode(raw, issued)
	require.ErrorIs(t, err, ErrInvalidSignature)

	// Signature is checked before expiry.
	_, err = newCodec(t, secretB).Decode(raw, issued.Add(2*time.Hour))
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestDecodeRejectsMalformedAndTampered(t *testing.T) {
	c := newCodec(t, secretA)
	issued := time.Unix(1_700_000_000, 0)
	raw, err := c.Issue(uuid.New(), issued, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	for _, bad := range []string{"", "abc", "a.b.c", tampered} {
		_, err := c.Decode(bad, issued)
		require.ErrorIs(t, err, ErrInvalidSignature, bad)
	}
}

func TestDecodeRejectsOtherAlgorithms(t *testing.T) {
	c := newCodec(t, secretA)
	claims := jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(time.Unix(1_700_000_000, 0)),
		ExpiresAt: jwt.NewNumericDate(time.Unix(1_700_003_600, 0)),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(secretA))
	require.NoError(t, err)

	_, err = c.Decode(raw, time.Unix(1_700_000_000, 0))
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestDecodeRejectsNonUUIDSubject(t *testing.T) {
	c := newCodec(t, secretA)
	claims := jwt.RegisteredClaims{
		Subject:   "admin@example.com",
		IssuedAt:  jwt.NewNumericDate(time.Unix(1_700_000_000, 0)),
		ExpiresAt: jwt.NewNumericDate(time.Unix(1_700_003_600, 0)),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretA))
	require.NoError(t, err)

	_, err = c.Decode(raw, time.Unix(1_700_000_000, 0))
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestSnapshotIsCarried(t *testing.T) {
	c := newCodec(t, secretA)
	issued := time.Unix(1_700_000_000, 0)
	raw, err := c.IssueWithSnapshot(uuid.New(), issued, time.Hour, Snapshot{
		Roles:       []string{"admin"},
		Permissions: []string{"user:read"},
	})
	require.NoError(t, err)

	claims, err := c.Decode(raw, issued)
	require.NoError(t, err)
	require.Equal(t, []string{"admin"}, claims.Roles)
	require.Equal(t, []string{"user:read"}, claims.Permissions)
}

func TestIssueRequiresSubject(t *testing.T) {
	_, err := newCodec(t, secretA).Issue(uuid.Nil, time.Now(), time.Hour)
	require.Error(t, err)
}
