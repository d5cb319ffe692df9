package shared

// Core platform permissions, named resource:action.
const (
	PermUserRead   = "user:read"
	PermUserWrite  = "user:write"
	PermUserDelete = "user:delete"

	PermRoleRead   = "role:read"
	PermRoleWrite  = "role:write"
	PermRoleDelete = "role:delete"

	PermScopeRead   = "scope:read"
	PermScopeWrite  = "scope:write"
	PermScopeDelete = "scope:delete"
)

// System role names created by the seeder.
const (
	RoleAdmin     = "admin"
	RoleUser      = "user"
	RoleModerator = "moderator"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUserRead,
		PermUserWrite,
		PermUserDelete,
		PermRoleRead,
		PermRoleWrite,
		PermRoleDelete,
		PermScopeRead,
		PermScopeWrite,
		PermScopeDelete,
	}
}
