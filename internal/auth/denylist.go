package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist records token ids revoked before their expiry.
type Denylist interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

const denylistPrefix = "keystone:denylist:"

// RedisDenylist stores revoked token ids in Redis. Each key expires with the
// token, so the list never outgrows the set of live tokens.
type RedisDenylist struct {
	client *redis.Client
	clock  func() time.Time
}

// NewRedisDenylist constructs a RedisDenylist.
func NewRedisDenylist(client *redis.Client) *RedisDenylist {
	return &RedisDenylist{client: client, clock: time.Now}
}

// Revoke lists tokenID until expiresAt. Already-expired tokens are skipped.
func (d *RedisDenylist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return nil
	}
	ttl := expiresAt.Sub(d.clock())
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, denylistPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("auth: denylist revoke: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID is listed.
func (d *RedisDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	err := d.client.Get(ctx, denylistPrefix+tokenID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("auth: denylist lookup: %w", err)
	}
	return true, nil
}

var _ Denylist = (*RedisDenylist)(nil)
