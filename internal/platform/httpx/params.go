package httpx

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keystone-admin/keystone/internal/shared"
)

// UUIDParam parses a chi URL parameter as a UUID.
func UUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a UUID", shared.ErrValidation, name)
	}
	return id, nil
}

// ActorID returns the id of the authenticated principal, or uuid.Nil.
func ActorID(r *http.Request) uuid.UUID {
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		return p.UserID
	}
	return uuid.Nil
}
