package auth_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/keystone-admin/keystone/internal/auth"
	"github.com/keystone-admin/keystone/internal/authz"
	"github.com/keystone-admin/keystone/internal/platform/memdb"
	"github.com/keystone-admin/keystone/internal/rbac"
	"github.com/keystone-admin/keystone/internal/token"
)

type handlerFixture struct {
	router http.Handler
}

func newAuthHandler(t *testing.T, loginLimit int) *handlerFixture {
	t.Helper()
	store := memdb.New()
	seedAccount(t, store, "owner@example.com", "owner", "owner-secret", true)

	codec, err := token.NewCodec(strings.Repeat("h", 32), time.Hour)
	require.NoError(t, err)
	resolver, err := rbac.NewResolver(rbac.StrategyJoin, store)
	require.NoError(t, err)
	graph := rbac.NewService(store, resolver, nil, nil)

	d, _ := newDenylist(t)
	svc := auth.NewService(store, codec, graph, nil, nil).WithDenylist(d)
	guard := authz.NewMiddleware(authz.NewGate(codec, store, resolver, authz.WithDenylist(d)), nil, nil)

	r := chi.NewRouter()
	r.Route("/auth", auth.NewHandler(nil, svc, guard, loginLimit).MountRoutes)
	return &handlerFixture{router: r}
}

func (f *handlerFixture) send(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *handlerFixture) login(t *testing.T, secret string) string {
	t.Helper()
	rr := f.send(t, http.MethodPost, "/auth/login", "", map[string]string{"identifier": "owner", "secret": secret})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res auth.LoginResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	return res.Token
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newAuthHandler(t, 0)

	rr := f.send(t, http.MethodPost, "/auth/login", "", map[string]string{"identifier": "owner", "secret": "nope"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestLoginOverlongSecretIsGenericFailure(t *testing.T) {
	f := newAuthHandler(t, 0)
	secret := strings.Repeat("s", auth.MaxSecretBytes+1)

	rr := f.send(t, http.MethodPost, "/auth/login", "", map[string]string{"identifier": "owner", "secret": secret})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "Could not validate credentials")
	require.NotContains(t, rr.Body.String(), "72")

	form := url.Values{"username": {"nobody"}, "password": {secret}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLoginRejectsMalformedBodies(t *testing.T) {
	f := newAuthHandler(t, 0)

	rr := f.send(t, http.MethodPost, "/auth/login", "", map[string]string{"identifier": "owner"})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	form := url.Values{"username": {"owner"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestLoginRateLimit(t *testing.T) {
	f := newAuthHandler(t, 2)
	body := map[string]string{"identifier": "owner", "secret": "nope"}

	require.Equal(t, http.StatusUnauthorized, f.send(t, http.MethodPost, "/auth/login", "", body).Code)
	require.Equal(t, http.StatusUnauthorized, f.send(t, http.MethodPost, "/auth/login", "", body).Code)
	require.Equal(t, http.StatusTooManyRequests, f.send(t, http.MethodPost, "/auth/login", "", body).Code)
}

func TestMeAndRefresh(t *testing.T) {
	f := newAuthHandler(t, 0)
	tok := f.login(t, "owner-secret")

	rr := f.send(t, http.MethodGet, "/auth/me", tok, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var me auth.PrincipalSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	require.Equal(t, "owner", me.Username)
	require.Empty(t, me.Roles)

	rr = f.send(t, http.MethodPost, "/auth/refresh", tok, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	require.Equal(t, http.StatusUnauthorized, f.send(t, http.MethodGet, "/auth/me", "", nil).Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newAuthHandler(t, 0)
	tok := f.login(t, "owner-secret")

	rr := f.send(t, http.MethodPost, "/auth/logout", tok, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Successfully logged out")

	require.Equal(t, http.StatusUnauthorized, f.send(t, http.MethodGet, "/auth/me", tok, nil).Code)
}

func TestChangePasswordEndpoint(t *testing.T) {
	f := newAuthHandler(t, 0)
	tok := f.login(t, "owner-secret")

	rr := f.send(t, http.MethodPost, "/auth/password", tok, map[string]string{
		"current_password": "owner-secret",
		"new_password":     "short",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.send(t, http.MethodPost, "/auth/password", tok, map[string]string{
		"current_password": "owner-secret",
		"new_password":     "rotated-secret",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	f.login(t, "rotated-secret")
}
