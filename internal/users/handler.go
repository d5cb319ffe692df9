package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/keystone-admin/keystone/internal/platform/httpx"
	"github.com/keystone-admin/keystone/internal/shared"
)

// Handler exposes the user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     httpx.Guard
	validator *validator.Validate
}

// NewHandler builds the user handler.
func NewHandler(logger *slog.Logger, service *Service, guard httpx.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Require(shared.PermUserRead)).Get("/", h.listUsers)
	r.With(h.guard.Require(shared.PermUserWrite)).Post("/", h.createUser)
	r.Route("/{id}", func(r chi.Router) {
		r.With(h.guard.Require(shared.PermUserRead)).Get("/", h.getUser)
		r.With(h.guard.Require(shared.PermUserWrite)).Patch("/", h.updateUser)
		r.With(h.guard.Require(shared.PermUserDelete)).Delete("/", h.deleteUser)
		r.With(h.guard.Require(shared.PermUserRead)).Get("/roles", h.listRoles)
		r.With(h.guard.Require(shared.PermUserRead)).Get("/scopes", h.listScopes)
		r.With(h.guard.Require(shared.PermRoleWrite)).Post("/roles/{roleID}", h.assignRole)
		r.With(h.guard.Require(shared.PermRoleWrite)).Delete("/roles/{roleID}", h.revokeRole)
	})
}

type createUserRequest struct {
	Email       string      `json:"email" validate:"required,email,max=255"`
	Username    string      `json:"username" validate:"required,min=3,max=64"`
	FullName    string      `json:"full_name" validate:"max=255"`
	Password    string      `json:"password" validate:"required,min=8,max=72"`
	IsActive    *bool       `json:"is_active"`
	RoleIDs     []uuid.UUID `json:"role_ids"`
	Permissions []string    `json:"permissions" validate:"dive,required"`
}

type updateUserRequest struct {
	Email       *string   `json:"email" validate:"omitempty,email,max=255"`
	Username    *string   `json:"username" validate:"omitempty,min=3,max=64"`
	FullName    *string   `json:"full_name" validate:"omitempty,max=255"`
	Password    *string   `json:"password" validate:"omitempty,min=8,max=72"`
	IsActive    *bool     `json:"is_active"`
	Permissions *[]string `json:"permissions"`
}

type listUsersResponse struct {
	Users      []User            `json:"users"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Page:   shared.ParsePageRequest(r),
		Search: r.URL.Query().Get("q"),
	}
	if raw := r.URL.Query().Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, shared.ErrValidation)
			return
		}
		filter.Active = &active
	}
	users, page, err := h.service.ListUsers(r.Context(), filter)
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listUsersResponse{Users: users, Pagination: page})
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.CreateUser(r.Context(), CreateInput{
		Email:       req.Email,
		Username:    req.Username,
		FullName:    req.FullName,
		Password:    req.Password,
		IsActive:    req.IsActive,
		RoleIDs:     req.RoleIDs,
		Permissions: req.Permissions,
	}, httpx.ActorID(r))
	if err != nil {
		h.fail(w, "create user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateUserRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.UpdateUser(r.Context(), id, UpdateInput{
		Email:       req.Email,
		Username:    req.Username,
		FullName:    req.FullName,
		Password:    req.Password,
		IsActive:    req.IsActive,
		Permissions: req.Permissions,
	}, httpx.ActorID(r))
	if err != nil {
		h.fail(w, "update user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteUser(r.Context(), id, httpx.ActorID(r)); err != nil {
		h.fail(w, "delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	roles, err := h.service.UserRoles(r.Context(), id)
	if err != nil {
		h.fail(w, "user roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) listScopes(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	scopes, err := h.service.UserScopes(r.Context(), id)
	if err != nil {
		h.fail(w, "user scopes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"scopes": scopes})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, roleID, err := h.grantParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.AssignRole(r.Context(), userID, roleID, httpx.ActorID(r)); err != nil {
		h.fail(w, "assign role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"message": "Role assigned"})
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	userID, roleID, err := h.grantParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RevokeRole(r.Context(), userID, roleID, httpx.ActorID(r)); err != nil {
		h.fail(w, "revoke role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) grantParams(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	userID, err := httpx.UUIDParam(r, "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	roleID, err := httpx.UUIDParam(r, "roleID")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userID, roleID, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.IsServerError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
