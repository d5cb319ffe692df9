package roles

import (
	"context"

	"github.com/google/uuid"

	"github.com/keystone-admin/keystone/internal/rbac"
)

// Service is the role management surface of the permission graph;
// *rbac.Service implements it.
type Service interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	GetRole(ctx context.Context, id uuid.UUID) (rbac.Role, error)
	CreateRole(ctx context.Context, in rbac.RoleInput, actor uuid.UUID) (rbac.Role, error)
	UpdateRole(ctx context.Context, id uuid.UUID, in rbac.RoleUpdate, actor uuid.UUID) (rbac.Role, error)
	DeleteRole(ctx context.Context, id uuid.UUID, actor uuid.UUID) error
	RoleScopes(ctx context.Context, roleID uuid.UUID) ([]rbac.Scope, error)
	SetRoleScopes(ctx context.Context, roleID uuid.UUID, scopeIDs []uuid.UUID, actor uuid.UUID) error
	AssignScope(ctx context.Context, roleID, scopeID, actor uuid.UUID) error
	RevokeScope(ctx context.Context, roleID, scopeID, actor uuid.UUID) error
}

var _ Service = (*rbac.Service)(nil)
