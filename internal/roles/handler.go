package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/keystone-admin/keystone/internal/platform/httpx"
	"github.com/keystone-admin/keystone/internal/rbac"
	"github.com/keystone-admin/keystone/internal/shared"
)

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	guard     httpx.Guard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service Service, guard httpx.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermRoleRead))
		r.Get("/", h.listRoles)
		r.Get("/{id}", h.getRole)
		r.Get("/{id}/scopes", h.listScopes)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermRoleWrite))
		r.Post("/", h.createRole)
		r.Patch("/{id}", h.updateRole)
		r.Put("/{id}/scopes", h.replaceScopes)
		r.Post("/{id}/scopes/{scopeID}", h.assignScope)
		r.Delete("/{id}/scopes/{scopeID}", h.revokeScope)
	})
	r.With(h.guard.Require(shared.PermRoleDelete)).Delete("/{id}", h.deleteRole)
}

type createRoleRequest struct {
	Name        string      `json:"name" validate:"required,max=64"`
	Description string      `json:"description" validate:"max=255"`
	ScopeIDs    []uuid.UUID `json:"scope_ids"`
}

type updateRoleRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=64"`
	Description *string `json:"description" validate:"omitempty,max=255"`
}

type scopeIDsRequest struct {
	ScopeIDs []uuid.UUID `json:"scope_ids" validate:"required"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), rbac.RoleInput{
		Name:        req.Name,
		Description: req.Description,
		ScopeIDs:    req.ScopeIDs,
	}, httpx.ActorID(r))
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, rbac.RoleUpdate{Name: req.Name, Description: req.Description}, httpx.ActorID(r))
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteRole(r.Context(), id, httpx.ActorID(r)); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listScopes(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	scopes, err := h.service.RoleScopes(r.Context(), id)
	if err != nil {
		h.fail(w, "role scopes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"scopes": scopes})
}

func (h *Handler) replaceScopes(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req scopeIDsRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.SetRoleScopes(r.Context(), id, req.ScopeIDs, httpx.ActorID(r)); err != nil {
		h.fail(w, "replace role scopes", err)
		return
	}
	scopes, err := h.service.RoleScopes(r.Context(), id)
	if err != nil {
		h.fail(w, "role scopes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"scopes": scopes})
}

func (h *Handler) assignScope(w http.ResponseWriter, r *http.Request) {
	roleID, scopeID, err := grantParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.AssignScope(r.Context(), roleID, scopeID, httpx.ActorID(r)); err != nil {
		h.fail(w, "assign scope", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"message": "Scope assigned"})
}

func (h *Handler) revokeScope(w http.ResponseWriter, r *http.Request) {
	roleID, scopeID, err := grantParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RevokeScope(r.Context(), roleID, scopeID, httpx.ActorID(r)); err != nil {
		h.fail(w, "revoke scope", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func grantParams(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	roleID, err := httpx.UUIDParam(r, "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	scopeID, err := httpx.UUIDParam(r, "scopeID")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return roleID, scopeID, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.IsServerError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
