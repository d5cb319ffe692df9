package users_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/keystone-admin/keystone/internal/shared"
	"github.com/keystone-admin/keystone/internal/users"
)

// grantedGuard admits a fixed principal holding the listed permissions.
type grantedGuard struct {
	principal *shared.Principal
}

func (g grantedGuard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), g.principal)))
	})
}

func (g grantedGuard) Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !g.principal.Has(permission) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			g.Authenticate(next).ServeHTTP(w, r)
		})
	}
}

func newUsersRouter(f *usersFixture, perms ...string) http.Handler {
	guard := grantedGuard{principal: &shared.Principal{UserID: uuid.New(), Permissions: perms}}
	r := chi.NewRouter()
	r.Route("/users", users.NewHandler(nil, f.service, guard).MountRoutes)
	return r
}

func call(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestUserEndpointsLifecycle(t *testing.T) {
	f := newUsersFixture(t, "join")
	h := newUsersRouter(f, shared.PermUserRead, shared.PermUserWrite, shared.PermUserDelete, shared.PermRoleWrite)

	rr := call(t, h, http.MethodPost, "/users", map[string]any{
		"email": "new@example.com", "username": "newbie", "password": "password-1",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.NotContains(t, rr.Body.String(), "password")
	var created users.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	base := "/users/" + created.ID.String()

	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, base, nil).Code)

	rr = call(t, h, http.MethodPatch, base, map[string]any{"full_name": "New Bie"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"full_name":"New Bie"`)

	rr = call(t, h, http.MethodPost, base+"/roles/"+f.role.ID.String(), nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = call(t, h, http.MethodGet, base+"/scopes", nil)
	require.JSONEq(t, `{"scopes":["user:read"]}`, rr.Body.String())

	require.Equal(t, http.StatusNoContent, call(t, h, http.MethodDelete, base+"/roles/"+f.role.ID.String(), nil).Code)
	require.Equal(t, http.StatusNoContent, call(t, h, http.MethodDelete, base+"/roles/"+f.role.ID.String(), nil).Code)

	rr = call(t, h, http.MethodGet, base+"/roles", nil)
	require.JSONEq(t, `{"roles":[]}`, rr.Body.String())

	require.Equal(t, http.StatusNoContent, call(t, h, http.MethodDelete, base, nil).Code)
	require.Equal(t, http.StatusNotFound, call(t, h, http.MethodGet, base, nil).Code)
}

func TestUserEndpointsRejectBadInput(t *testing.T) {
	f := newUsersFixture(t, "join")
	h := newUsersRouter(f, shared.PermUserRead, shared.PermUserWrite)

	require.Equal(t, http.StatusBadRequest, call(t, h, http.MethodGet, "/users/not-a-uuid", nil).Code)
	require.Equal(t, http.StatusBadRequest, call(t, h, http.MethodGet, "/users?active=maybe", nil).Code)
	require.Equal(t, http.StatusBadRequest, call(t, h, http.MethodPost, "/users", map[string]any{
		"email": "not-an-email", "username": "someone", "password": "password-1",
	}).Code)

	f.create(t, "dup@example.com", "dup")
	require.Equal(t, http.StatusConflict, call(t, h, http.MethodPost, "/users", map[string]any{
		"email": "dup@example.com", "username": "another", "password": "password-1",
	}).Code)
}

func TestUserEndpointsHonourPermissions(t *testing.T) {
	f := newUsersFixture(t, "join")
	h := newUsersRouter(f, shared.PermUserRead)

	rr := call(t, h, http.MethodGet, "/users?per_page=5", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"per_page":5`)

	require.Equal(t, http.StatusForbidden, call(t, h, http.MethodPost, "/users", map[string]any{}).Code)
	require.Equal(t, http.StatusForbidden, call(t, h, http.MethodDelete, "/users/"+uuid.NewString(), nil).Code)
}
