package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keystone-admin/keystone/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.ErrMissingCredentials, http.StatusUnauthorized},
		{fmt.Errorf("gate: %w", shared.ErrInvalidCredentials), http.StatusUnauthorized},
		{shared.ErrForbidden, http.StatusForbidden},
		{shared.ErrSystemRole, http.StatusForbidden},
		{shared.ErrNotFound, http.StatusNotFound},
		{shared.ErrConflict, http.StatusConflict},
		{shared.ErrValidation, http.StatusBadRequest},
		{shared.ErrTransient, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		assert.Equal(t, tc.status, rr.Code, tc.err.Error())
	}
}

func TestUnauthorizedSetsChallengeAndGenericDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.ErrInvalidCredentials)

	require.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, DetailCredentials, body.Detail)
}

func TestForbiddenDoesNotLeakPermission(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("%w: missing user:delete", shared.ErrForbidden))
	require.NotContains(t, rr.Body.String(), "user:delete")
}

func TestDecodeAndValidate(t *testing.T) {
	type payload struct {
		Name string `json:"name" validate:"required"`
	}
	v := validator.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":""}`))
	var p payload
	err := DecodeAndValidate(req, v, &p)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "name failed required")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bogus":1}`))
	require.ErrorIs(t, DecodeAndValidate(req, v, &p), shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ops"}`))
	require.NoError(t, DecodeAndValidate(req, v, &p))
	require.Equal(t, "ops", p.Name)
}
