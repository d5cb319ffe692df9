package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keystone-admin/keystone/internal/audit"
	"github.com/keystone-admin/keystone/internal/shared"
)

// RoleInput carries fields for role creation.
type RoleInput struct {
	Name        string
	Description string
	IsSystem    bool
	ScopeIDs    []uuid.UUID
}

// RoleUpdate carries optional role changes.
type RoleUpdate struct {
	Name        *string
	Description *string
}

// ScopeInput carries fields for scope creation or replacement.
type ScopeInput struct {
	Resource    string
	Action      string
	Description string
}

// ScopeUpdate carries optional scope changes.
type ScopeUpdate struct {
	Resource    *string
	Action      *string
	Description *string
}

// Service orchestrates RBAC operations.
type Service struct {
	store    Store
	resolver Resolver
	audit    audit.Recorder
	logger   *slog.Logger
	clock    func() time.Time
}

// NewService constructs a Service. The resolver decides whether grants go
// through user_roles (join) or the user's single role (inline).
func NewService(store Store, resolver Resolver, recorder audit.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		resolver: resolver,
		audit:    audit.OrNop(recorder),
		logger:   logger,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// Strategy reports the active resolution strategy.
func (s *Service) Strategy() string {
	return s.resolver.Strategy()
}

// EffectivePermissions returns the user's resolved permission set.
func (s *Service) EffectivePermissions(ctx context.Context, userID uuid.UUID) (PermissionSet, error) {
	return s.resolver.Resolve(ctx, userID)
}

// PermissionNames returns the sorted effective permissions.
func (s *Service) PermissionNames(ctx context.Context, userID uuid.UUID) ([]string, error) {
	set, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return set.Sorted(), nil
}

// RoleNames returns the names of the roles granted to the user.
func (s *Service) RoleNames(ctx context.Context, userID uuid.UUID) ([]string, error) {
	roles, err := s.UserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	return names, nil
}

// AssignRole grants a role to a user. It fails with shared.ErrNotFound when
// either id is unknown and shared.ErrConflict when the grant already exists.
// Under the inline strategy a user holds at most one role, so assigning while
// another role is held is also a conflict.
func (s *Service) AssignRole(ctx context.Context, userID, roleID, assignedBy uuid.UUID) error {
	var err error
	if s.Strategy() == StrategyInline {
		err = s.store.SetPrimaryRole(ctx, userID, roleID)
	} else {
		err = s.store.InsertUserRole(ctx, UserRole{
			UserID:     userID,
			RoleID:     roleID,
			AssignedBy: assignedBy,
			AssignedAt: s.clock(),
		})
	}
	if err != nil {
		return fmt.Errorf("rbac: assign role: %w", err)
	}
	s.record(ctx, assignedBy, audit.ActionRoleAssigned, "user_roles", userID.String(), map[string]any{"role_id": roleID.String()})
	return nil
}

// RevokeRole removes a role grant. Removing a grant that does not exist is
// not an error.
func (s *Service) RevokeRole(ctx context.Context, userID, roleID, actor uuid.UUID) error {
	var (
		removed bool
		err     error
	)
	if s.Strategy() == StrategyInline {
		removed, err = s.store.ClearPrimaryRole(ctx, userID, roleID)
	} else {
		removed, err = s.store.DeleteUserRole(ctx, userID, roleID)
	}
	if err != nil {
		return fmt.Errorf("rbac: revoke role: %w", err)
	}
	if removed {
		s.record(ctx, actor, audit.ActionRoleRevoked, "user_roles", userID.String(), map[string]any{"role_id": roleID.String()})
	}
	return nil
}

// AssignScope grants a scope to a role with the same error contract as AssignRole.
func (s *Service) AssignScope(ctx context.Context, roleID, scopeID, actor uuid.UUID) error {
	if err := s.store.InsertRoleScope(ctx, RoleScope{RoleID: roleID, ScopeID: scopeID, CreatedAt: s.clock()}); err != nil {
		return fmt.Errorf("rbac: assign scope: %w", err)
	}
	s.record(ctx, actor, audit.ActionScopeAssigned, "role_scopes", roleID.String(), map[string]any{"scope_id": scopeID.String()})
	return nil
}

// RevokeScope removes a scope from a role; absent grants are ignored.
func (s *Service) RevokeScope(ctx context.Context, roleID, scopeID, actor uuid.UUID) error {
	removed, err := s.store.DeleteRoleScope(ctx, roleID, scopeID)
	if err != nil {
		return fmt.Errorf("rbac: revoke scope: %w", err)
	}
	if removed {
		s.record(ctx, actor, audit.ActionScopeRevoked, "role_scopes", roleID.String(), map[string]any{"scope_id": scopeID.String()})
	}
	return nil
}

// SetRoleScopes replaces the scopes of a role in one transaction.
func (s *Service) SetRoleScopes(ctx context.Context, roleID uuid.UUID, scopeIDs []uuid.UUID, actor uuid.UUID) error {
	if err := s.store.ReplaceRoleScopes(ctx, roleID, dedupeIDs(scopeIDs)); err != nil {
		return fmt.Errorf("rbac: set role scopes: %w", err)
	}
	s.record(ctx, actor, audit.ActionRoleScopesSet, "role_scopes", roleID.String(), map[string]any{"count": len(scopeIDs)})
	return nil
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	return s.store.GetRole(ctx, id)
}

// CreateRole inserts a new role together with its initial scopes.
func (s *Service) CreateRole(ctx context.Context, in RoleInput, actor uuid.UUID) (Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	now := s.clock()
	role, err := s.store.CreateRole(ctx, Role{
		ID:          uuid.New(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		IsSystem:    in.IsSystem,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, dedupeIDs(in.ScopeIDs))
	if err != nil {
		return Role{}, fmt.Errorf("rbac: create role: %w", err)
	}
	s.record(ctx, actor, audit.ActionRoleCreated, "roles", role.ID.String(), map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole applies changes to a role. System roles keep their name.
func (s *Service) UpdateRole(ctx context.Context, id uuid.UUID, in RoleUpdate, actor uuid.UUID) (Role, error) {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
		}
		if name != role.Name && role.IsSystem {
			return Role{}, shared.ErrSystemRole
		}
		role.Name = name
	}
	if in.Description != nil {
		role.Description = strings.TrimSpace(*in.Description)
	}
	role.UpdatedAt = s.clock()
	updated, err := s.store.UpdateRole(ctx, role)
	if err != nil {
		return Role{}, fmt.Errorf("rbac: update role: %w", err)
	}
	s.record(ctx, actor, audit.ActionRoleUpdated, "roles", id.String(), nil)
	return updated, nil
}

// DeleteRole removes a role and every grant referencing it.
func (s *Service) DeleteRole(ctx context.Context, id uuid.UUID, actor uuid.UUID) error {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return shared.ErrSystemRole
	}
	if err := s.store.DeleteRole(ctx, id); err != nil {
		return fmt.Errorf("rbac: delete role: %w", err)
	}
	s.record(ctx, actor, audit.ActionRoleDeleted, "roles", id.String(), map[string]any{"name": role.Name})
	return nil
}

// RoleScopes lists the scopes granted to a role.
func (s *Service) RoleScopes(ctx context.Context, roleID uuid.UUID) ([]Scope, error) {
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.store.ScopesForRole(ctx, roleID)
}

// UserRoles lists the roles granted to a user under the active strategy.
func (s *Service) UserRoles(ctx context.Context, userID uuid.UUID) ([]Role, error) {
	if s.Strategy() != StrategyInline {
		return s.store.RolesForUser(ctx, userID)
	}
	subject, err := s.store.Subject(ctx, userID)
	if err != nil {
		return nil, err
	}
	if subject.PrimaryRoleID == nil {
		return []Role{}, nil
	}
	role, err := s.store.GetRole(ctx, *subject.PrimaryRoleID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return []Role{}, nil
		}
		return nil, err
	}
	return []Role{role}, nil
}

// ListScopes returns all scopes ordered by name.
func (s *Service) ListScopes(ctx context.Context) ([]Scope, error) {
	return s.store.ListScopes(ctx)
}

// GetScope fetches a scope by ID.
func (s *Service) GetScope(ctx context.Context, id uuid.UUID) (Scope, error) {
	return s.store.GetScope(ctx, id)
}

// CreateScope inserts a scope; its name is always resource:action.
func (s *Service) CreateScope(ctx context.Context, in ScopeInput, actor uuid.UUID) (Scope, error) {
	resource, action, err := validateScopeParts(in.Resource, in.Action)
	if err != nil {
		return Scope{}, err
	}
	now := s.clock()
	scope, err := s.store.CreateScope(ctx, Scope{
		ID:          uuid.New(),
		Name:        CanonicalName(resource, action),
		Resource:    resource,
		Action:      action,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Scope{}, fmt.Errorf("rbac: create scope: %w", err)
	}
	s.record(ctx, actor, audit.ActionScopeCreated, "scopes", scope.ID.String(), map[string]any{"name": scope.Name})
	return scope, nil
}

// EnsureScope returns the scope with the given resource and action, creating it when absent.
func (s *Service) EnsureScope(ctx context.Context, in ScopeInput, actor uuid.UUID) (Scope, error) {
	resource, action, err := validateScopeParts(in.Resource, in.Action)
	if err != nil {
		return Scope{}, err
	}
	existing, err := s.store.GetScopeByName(ctx, CanonicalName(resource, action))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return Scope{}, err
	}
	return s.CreateScope(ctx, in, actor)
}

// EnsureRole returns the named role, creating it when absent.
func (s *Service) EnsureRole(ctx context.Context, in RoleInput, actor uuid.UUID) (Role, error) {
	existing, err := s.store.GetRoleByName(ctx, strings.TrimSpace(in.Name))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return Role{}, err
	}
	return s.CreateRole(ctx, in, actor)
}

// UpdateScope applies changes to a scope, recomputing its name.
func (s *Service) UpdateScope(ctx context.Context, id uuid.UUID, in ScopeUpdate, actor uuid.UUID) (Scope, error) {
	scope, err := s.store.GetScope(ctx, id)
	if err != nil {
		return Scope{}, err
	}
	resource, action := scope.Resource, scope.Action
	if in.Resource != nil {
		resource = *in.Resource
	}
	if in.Action != nil {
		action = *in.Action
	}
	resource, action, err = validateScopeParts(resource, action)
	if err != nil {
		return Scope{}, err
	}
	scope.Resource, scope.Action = resource, action
	scope.Name = CanonicalName(resource, action)
	if in.Description != nil {
		scope.Description = strings.TrimSpace(*in.Description)
	}
	scope.UpdatedAt = s.clock()
	updated, err := s.store.UpdateScope(ctx, scope)
	if err != nil {
		return Scope{}, fmt.Errorf("rbac: update scope: %w", err)
	}
	s.record(ctx, actor, audit.ActionScopeUpdated, "scopes", id.String(), map[string]any{"name": updated.Name})
	return updated, nil
}

// DeleteScope removes a scope and its role grants.
func (s *Service) DeleteScope(ctx context.Context, id uuid.UUID, actor uuid.UUID) error {
	if err := s.store.DeleteScope(ctx, id); err != nil {
		return fmt.Errorf("rbac: delete scope: %w", err)
	}
	s.record(ctx, actor, audit.ActionScopeDeleted, "scopes", id.String(), nil)
	return nil
}

func (s *Service) record(ctx context.Context, actor uuid.UUID, action, entity, entityID string, meta map[string]any) {
	s.audit.Record(ctx, audit.Event{
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		ActorID:  actor,
		Meta:     meta,
		Level:    slog.LevelInfo,
	})
}

func validateScopeParts(resource, action string) (string, string, error) {
	resource = NormalizePermission(resource)
	action = NormalizePermission(action)
	if resource == "" || action == "" {
		return "", "", fmt.Errorf("%w: resource and action required", shared.ErrValidation)
	}
	if strings.Contains(resource, ":") || strings.Contains(action, ":") {
		return "", "", fmt.Errorf("%w: resource and action must not contain ':'", shared.ErrValidation)
	}
	return resource, action, nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
