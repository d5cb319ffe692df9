package rbac

import (
	"context"

	"github.com/google/uuid"
)

// GraphReader is the read path used by resolvers.
type GraphReader interface {
	Subject(ctx context.Context, userID uuid.UUID) (Subject, error)
	ScopesForUser(ctx context.Context, userID uuid.UUID) ([]Scope, error)
	ScopesForRole(ctx context.Context, roleID uuid.UUID) ([]Scope, error)
}

// Store persists roles, scopes and both join relations. Every mutating
// method is atomic: either all of its rows change or none do.
//
// Insert methods return shared.ErrNotFound when a referenced row is missing
// and shared.ErrConflict when the pair already exists. Delete methods on
// join rows report whether a row was removed.
type Store interface {
	GraphReader

	CreateRole(ctx context.Context, role Role, scopeIDs []uuid.UUID) (Role, error)
	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error

	CreateScope(ctx context.Context, scope Scope) (Scope, error)
	GetScope(ctx context.Context, id uuid.UUID) (Scope, error)
	GetScopeByName(ctx context.Context, name string) (Scope, error)
	ListScopes(ctx context.Context) ([]Scope, error)
	UpdateScope(ctx context.Context, scope Scope) (Scope, error)
	DeleteScope(ctx context.Context, id uuid.UUID) error

	InsertUserRole(ctx context.Context, ur UserRole) error
	DeleteUserRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error)
	RolesForUser(ctx context.Context, userID uuid.UUID) ([]Role, error)

	SetPrimaryRole(ctx context.Context, userID, roleID uuid.UUID) error
	ClearPrimaryRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error)

	InsertRoleScope(ctx context.Context, rs RoleScope) error
	DeleteRoleScope(ctx context.Context, roleID, scopeID uuid.UUID) (bool, error)
	ReplaceRoleScopes(ctx context.Context, roleID uuid.UUID, scopeIDs []uuid.UUID) error
}
