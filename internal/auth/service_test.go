package auth_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/keystone-admin/keystone/internal/audit"
	"github.com/keystone-admin/keystone/internal/auth"
	"github.com/keystone-admin/keystone/internal/platform/memdb"
	"github.com/keystone-admin/keystone/internal/shared"
	"github.com/keystone-admin/keystone/internal/token"
)

type fixedGrants struct {
	roles []string
	perms []string
}

func (g fixedGrants) RoleNames(context.Context, uuid.UUID) ([]string, error) { return g.roles, nil }

func (g fixedGrants) PermissionNames(context.Context, uuid.UUID) ([]string, error) {
	return g.perms, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []audit.Event
}

func (l *eventLog) Record(_ context.Context, e audit.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) actions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Action)
	}
	return out
}

type loginCounter struct{ ok, failed int }

func (c *loginCounter) ObserveLogin(success bool) {
	if success {
		c.ok++
		return
	}
	c.failed++
}

type serviceFixture struct {
	store   *memdb.Store
	codec   *token.Codec
	log     *eventLog
	service *auth.Service
	user    *auth.User
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	store := memdb.New()
	codec, err := token.NewCodec(strings.Repeat("s", 32), time.Hour)
	require.NoError(t, err)
	log := &eventLog{}
	svc := auth.NewService(store, codec, fixedGrants{roles: []string{"admin"}, perms: []string{"user:read"}}, log, nil)
	return &serviceFixture{
		store:   store,
		codec:   codec,
		log:     log,
		service: svc,
		user:    seedAccount(t, store, "owner@example.com", "owner", "owner-secret", true),
	}
}

func (f *serviceFixture) principal(t *testing.T, raw string) *shared.Principal {
	t.Helper()
	claims, err := f.codec.Decode(raw, time.Now())
	require.NoError(t, err)
	return &shared.Principal{UserID: claims.Subject, TokenID: claims.ID, TokenExpiresAt: claims.ExpiresAt}
}

func TestLoginIssuesTokenWithSnapshot(t *testing.T) {
	f := newServiceFixture(t)
	counter := &loginCounter{}
	f.service.WithObserver(counter)

	res, err := f.service.Login(context.Background(), "OWNER@example.com", "owner-secret", auth.LoginMeta{IP: "10.0.0.1"})
	require.NoError(t, err)
	require.Equal(t, auth.TokenType, res.TokenType)
	require.Equal(t, f.user.ID, res.Principal.ID)
	require.Equal(t, []string{"admin"}, res.Principal.Roles)
	require.WithinDuration(t, time.Now().Add(time.Hour), res.ExpiresAt, 2*time.Second)

	claims, err := f.codec.Decode(res.Token, time.Now())
	require.NoError(t, err)
	require.Equal(t, f.user.ID, claims.Subject)
	require.Equal(t, []string{"user:read"}, claims.Permissions)
	require.Equal(t, 1, counter.ok)
	require.Equal(t, []string{audit.ActionLoginSucceeded}, f.log.actions())
}

func TestLoginFailuresLookAlike(t *testing.T) {
	f := newServiceFixture(t)
	seedAccount(t, f.store, "idle@example.com", "idle", "idle-secret", false)
	counter := &loginCounter{}
	f.service.WithObserver(counter)
	ctx := context.Background()

	for _, tc := range []struct{ identifier, secret string }{
		{"owner", "wrong"},
		{"ghost", "owner-secret"},
		{"idle", "idle-secret"},
	} {
		_, err := f.service.Login(ctx, tc.identifier, tc.secret, auth.LoginMeta{})
		require.ErrorIs(t, err, shared.ErrInvalidCredentials, tc.identifier)
	}
	require.Equal(t, 3, counter.failed)
	require.Len(t, f.log.events, 3)
	require.Equal(t, "ghost", f.log.events[1].Meta["identifier"])
}

func TestRefreshAndMe(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	res, err := f.service.Login(ctx, "owner", "owner-secret", auth.LoginMeta{})
	require.NoError(t, err)
	p := f.principal(t, res.Token)

	refreshed, err := f.service.Refresh(ctx, p)
	require.NoError(t, err)
	require.NotEqual(t, res.Token, refreshed.Token)

	me, err := f.service.Me(ctx, p)
	require.NoError(t, err)
	require.Equal(t, "owner@example.com", me.Email)

	_, err = f.service.Me(ctx, nil)
	require.ErrorIs(t, err, shared.ErrMissingCredentials)

	_, err = f.service.Me(ctx, &shared.Principal{UserID: uuid.New()})
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLogoutRevokesWhenDenylistConfigured(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	res, err := f.service.Login(ctx, "owner", "owner-secret", auth.LoginMeta{})
	require.NoError(t, err)
	p := f.principal(t, res.Token)

	require.NoError(t, f.service.Logout(ctx, p))

	d, mr := newDenylist(t)
	f.service.WithDenylist(d)
	require.NoError(t, f.service.Logout(ctx, p))
	revoked, err := d.IsRevoked(ctx, p.TokenID)
	require.NoError(t, err)
	require.True(t, revoked)

	mr.Close()
	require.ErrorIs(t, f.service.Logout(ctx, p), shared.ErrTransient)
	require.ErrorIs(t, f.service.Logout(ctx, nil), shared.ErrMissingCredentials)
}

func TestChangePassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	p := &shared.Principal{UserID: f.user.ID}

	err := f.service.ChangePassword(ctx, p, "not-it", "brand-new-secret")
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, f.service.ChangePassword(ctx, p, "owner-secret", "brand-new-secret"))
	_, err = f.service.Login(ctx, "owner", "owner-secret", auth.LoginMeta{})
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = f.service.Login(ctx, "owner", "brand-new-secret", auth.LoginMeta{})
	require.NoError(t, err)
	require.Contains(t, f.log.actions(), audit.ActionPasswordChange)
}
