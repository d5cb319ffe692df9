package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/keystone-admin/keystone/internal/platform/httpx"
	"github.com/keystone-admin/keystone/internal/shared"
)

// ScopesHandler exposes scope CRUD.
type ScopesHandler struct {
	logger    *slog.Logger
	service   *Service
	guard     httpx.Guard
	validator *validator.Validate
}

// NewScopesHandler builds ScopesHandler instance.
func NewScopesHandler(logger *slog.Logger, service *Service, guard httpx.Guard) *ScopesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScopesHandler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers scope routes.
func (h *ScopesHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermScopeRead))
		r.Get("/", h.listScopes)
		r.Get("/{id}", h.getScope)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermScopeWrite))
		r.Post("/", h.createScope)
		r.Patch("/{id}", h.updateScope)
	})
	r.With(h.guard.Require(shared.PermScopeDelete)).Delete("/{id}", h.deleteScope)
}

type createScopeRequest struct {
	Resource    string `json:"resource" validate:"required,max=64"`
	Action      string `json:"action" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
}

type updateScopeRequest struct {
	Resource    *string `json:"resource" validate:"omitempty,max=64"`
	Action      *string `json:"action" validate:"omitempty,max=64"`
	Description *string `json:"description" validate:"omitempty,max=255"`
}

func (h *ScopesHandler) listScopes(w http.ResponseWriter, r *http.Request) {
	scopes, err := h.service.ListScopes(r.Context())
	if err != nil {
		h.fail(w, "list scopes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"scopes": scopes})
}

func (h *ScopesHandler) getScope(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	scope, err := h.service.GetScope(r.Context(), id)
	if err != nil {
		h.fail(w, "get scope", err)
		return
	}
	httpx.JSON(w, http.StatusOK, scope)
}

func (h *ScopesHandler) createScope(w http.ResponseWriter, r *http.Request) {
	var req createScopeRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	scope, err := h.service.CreateScope(r.Context(), ScopeInput{
		Resource:    req.Resource,
		Action:      req.Action,
		Description: req.Description,
	}, httpx.ActorID(r))
	if err != nil {
		h.fail(w, "create scope", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, scope)
}

func (h *ScopesHandler) updateScope(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateScopeRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	scope, err := h.service.UpdateScope(r.Context(), id, ScopeUpdate{
		Resource:    req.Resource,
		Action:      req.Action,
		Description: req.Description,
	}, httpx.ActorID(r))
	if err != nil {
		h.fail(w, "update scope", err)
		return
	}
	httpx.JSON(w, http.StatusOK, scope)
}

func (h *ScopesHandler) deleteScope(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteScope(r.Context(), id, httpx.ActorID(r)); err != nil {
		h.fail(w, "delete scope", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScopesHandler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.IsServerError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
