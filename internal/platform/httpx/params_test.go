package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/keystone-admin/keystone/internal/shared"
)

func TestUUIDParam(t *testing.T) {
	id := uuid.New()
	var got uuid.UUID
	var gotErr error
	r := chi.NewRouter()
	r.Get("/things/{id}", func(w http.ResponseWriter, req *http.Request) {
		got, gotErr = UUIDParam(req, "id")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/"+id.String(), nil))
	require.NoError(t, gotErr)
	require.Equal(t, id, got)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/42", nil))
	require.ErrorIs(t, gotErr, shared.ErrValidation)
	require.ErrorContains(t, gotErr, "id must be a UUID")
}

func TestActorID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Equal(t, uuid.Nil, ActorID(req))

	id := uuid.New()
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), &shared.Principal{UserID: id}))
	require.Equal(t, id, ActorID(req))
}
