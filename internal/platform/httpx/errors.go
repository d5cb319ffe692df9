// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/keystone-admin/keystone/internal/shared"
)

// Client-facing details. Authentication failures share one message so callers
// cannot tell which check rejected them.
const (
	DetailCredentials = "Could not validate credentials"
	DetailForbidden   = "Insufficient permissions"
)

// Unauthorized writes a 401 with the bearer challenge header.
func Unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	Problem(w, http.StatusUnauthorized, "Unauthorized", DetailCredentials)
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case shared.IsAuthentication(err):
		Unauthorized(w)
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", DetailForbidden)
	case errors.Is(err, shared.ErrSystemRole):
		Problem(w, http.StatusForbidden, "Forbidden", "System roles cannot be modified")
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "Resource not found")
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", "Resource already exists")
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrTransient):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "Temporary failure, retry the request")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// IsServerError reports whether RespondError would answer err with a 5xx.
func IsServerError(err error) bool {
	switch {
	case shared.IsAuthentication(err),
		errors.Is(err, shared.ErrForbidden),
		errors.Is(err, shared.ErrSystemRole),
		errors.Is(err, shared.ErrNotFound),
		errors.Is(err, shared.ErrConflict),
		errors.Is(err, shared.ErrValidation):
		return false
	}
	return true
}
