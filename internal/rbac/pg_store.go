package rbac

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keystone-admin/keystone/internal/platform/db"
	"github.com/keystone-admin/keystone/internal/shared"
)

const (
	roleColumns  = `id, name, description, is_system, created_at, updated_at`
	scopeColumns = `id, name, resource, action, description, created_at, updated_at`
)

// PGStore implements Store using PostgreSQL. Join rows cascade through
// foreign keys declared ON DELETE CASCADE.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PostgreSQL store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Subject loads the resolution view of a user.
func (s *PGStore) Subject(ctx context.Context, userID uuid.UUID) (Subject, error) {
	var sub Subject
	err := s.pool.QueryRow(ctx, `SELECT id, is_active, role_id, permissions FROM users WHERE id = $1`, userID).
		Scan(&sub.ID, &sub.IsActive, &sub.PrimaryRoleID, &sub.InlinePermissions)
	if err != nil {
		return Subject{}, db.MapError(err)
	}
	return sub, nil
}

// ScopesForUser returns the distinct scopes reachable through user_roles.
func (s *PGStore) ScopesForUser(ctx context.Context, userID uuid.UUID) ([]Scope, error) {
	return s.queryScopes(ctx, `SELECT DISTINCT s.id, s.name, s.resource, s.action, s.description, s.created_at, s.updated_at
		FROM scopes s
		JOIN role_scopes rs ON rs.scope_id = s.id
		JOIN user_roles ur ON ur.role_id = rs.role_id
		WHERE ur.user_id = $1
		ORDER BY s.name`, userID)
}

// ScopesForRole returns the scopes granted to a role.
func (s *PGStore) ScopesForRole(ctx context.Context, roleID uuid.UUID) ([]Scope, error) {
	return s.queryScopes(ctx, `SELECT s.id, s.name, s.resource, s.action, s.description, s.created_at, s.updated_at
		FROM scopes s
		JOIN role_scopes rs ON rs.scope_id = s.id
		WHERE rs.role_id = $1
		ORDER BY s.name`, roleID)
}

// CreateRole inserts a role and its initial scope grants atomically.
func (s *PGStore) CreateRole(ctx context.Context, role Role, scopeIDs []uuid.UUID) (Role, error) {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO roles (`+roleColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
			role.ID, role.Name, role.Description, role.IsSystem, role.CreatedAt, role.UpdatedAt); err != nil {
			return db.MapError(err)
		}
		for _, scopeID := range scopeIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO role_scopes (role_id, scope_id, created_at) VALUES ($1, $2, $3)`,
				role.ID, scopeID, role.CreatedAt); err != nil {
				return db.MapError(err)
			}
		}
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// GetRole fetches a role by ID.
func (s *PGStore) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	return scanRole(s.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// GetRoleByName fetches a role by its unique name.
func (s *PGStore) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return scanRole(s.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name))
}

// ListRoles returns all roles ordered by name.
func (s *PGStore) ListRoles(ctx context.Context) ([]Role, error) {
	return s.queryRoles(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
}

// UpdateRole persists name and description changes.
func (s *PGStore) UpdateRole(ctx context.Context, role Role) (Role, error) {
	return scanRole(s.pool.QueryRow(ctx, `UPDATE roles SET name = $2, description = $3, updated_at = $4
		WHERE id = $1 RETURNING `+roleColumns, role.ID, role.Name, role.Description, role.UpdatedAt))
}

// DeleteRole removes a role; user_roles and role_scopes rows cascade and
// users.role_id is cleared by the foreign key.
func (s *PGStore) DeleteRole(ctx context.Context, id uuid.UUID) error {
	return execAffectingOne(ctx, s.pool, `DELETE FROM roles WHERE id = $1`, id)
}

// CreateScope inserts a scope.
func (s *PGStore) CreateScope(ctx context.Context, scope Scope) (Scope, error) {
	_, err := s.pool.Exec(ctx, `INSERT INTO scopes (`+scopeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		scope.ID, scope.Name, scope.Resource, scope.Action, scope.Description, scope.CreatedAt, scope.UpdatedAt)
	if err != nil {
		return Scope{}, db.MapError(err)
	}
	return scope, nil
}

// GetScope fetches a scope by ID.
func (s *PGStore) GetScope(ctx context.Context, id uuid.UUID) (Scope, error) {
	return scanScope(s.pool.QueryRow(ctx, `SELECT `+scopeColumns+` FROM scopes WHERE id = $1`, id))
}

// GetScopeByName fetches a scope by canonical name.
func (s *PGStore) GetScopeByName(ctx context.Context, name string) (Scope, error) {
	return scanScope(s.pool.QueryRow(ctx, `SELECT `+scopeColumns+` FROM scopes WHERE name = $1`, name))
}

// ListScopes returns all scopes ordered by name.
func (s *PGStore) ListScopes(ctx context.Context) ([]Scope, error) {
	return s.queryScopes(ctx, `SELECT `+scopeColumns+` FROM scopes ORDER BY name`)
}

// UpdateScope persists scope changes.
func (s *PGStore) UpdateScope(ctx context.Context, scope Scope) (Scope, error) {
	return scanScope(s.pool.QueryRow(ctx, `UPDATE scopes SET name = $2, resource = $3, action = $4, description = $5, updated_at = $6
		WHERE id = $1 RETURNING `+scopeColumns,
		scope.ID, scope.Name, scope.Resource, scope.Action, scope.Description, scope.UpdatedAt))
}

// DeleteScope removes a scope; role_scopes rows cascade.
func (s *PGStore) DeleteScope(ctx context.Context, id uuid.UUID) error {
	return execAffectingOne(ctx, s.pool, `DELETE FROM scopes WHERE id = $1`, id)
}

// InsertUserRole adds a user_roles row. Missing users or roles surface as
// foreign key violations and duplicates as unique violations.
func (s *PGStore) InsertUserRole(ctx context.Context, ur UserRole) error {
	var assignedBy *uuid.UUID
	if ur.AssignedBy != uuid.Nil {
		assignedBy = &ur.AssignedBy
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO user_roles (user_id, role_id, assigned_by, assigned_at) VALUES ($1, $2, $3, $4)`,
		ur.UserID, ur.RoleID, assignedBy, ur.AssignedAt)
	return db.MapError(err)
}

// DeleteUserRole removes a user_roles row.
func (s *PGStore) DeleteUserRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return false, db.MapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// RolesForUser lists roles granted through user_roles.
func (s *PGStore) RolesForUser(ctx context.Context, userID uuid.UUID) ([]Role, error) {
	return s.queryRoles(ctx, `SELECT r.id, r.name, r.description, r.is_system, r.created_at, r.updated_at
		FROM roles r JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1 ORDER BY r.name`, userID)
}

// SetPrimaryRole sets users.role_id when the user holds no role yet.
func (s *PGStore) SetPrimaryRole(ctx context.Context, userID, roleID uuid.UUID) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var current *uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT role_id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&current); err != nil {
			return db.MapError(err)
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists); err != nil {
			return db.MapError(err)
		}
		if !exists {
			return shared.ErrNotFound
		}
		if current != nil {
			return shared.ErrConflict
		}
		_, err := tx.Exec(ctx, `UPDATE users SET role_id = $2, updated_at = NOW() WHERE id = $1`, userID, roleID)
		return db.MapError(err)
	})
}

// ClearPrimaryRole clears users.role_id when it equals roleID.
func (s *PGStore) ClearPrimaryRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET role_id = NULL, updated_at = NOW() WHERE id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return false, db.MapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// InsertRoleScope adds a role_scopes row.
func (s *PGStore) InsertRoleScope(ctx context.Context, rs RoleScope) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO role_scopes (role_id, scope_id, created_at) VALUES ($1, $2, $3)`,
		rs.RoleID, rs.ScopeID, rs.CreatedAt)
	return db.MapError(err)
}

// DeleteRoleScope removes a role_scopes row.
func (s *PGStore) DeleteRoleScope(ctx context.Context, roleID, scopeID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM role_scopes WHERE role_id = $1 AND scope_id = $2`, roleID, scopeID)
	if err != nil {
		return false, db.MapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReplaceRoleScopes swaps the scope set of a role inside one transaction.
func (s *PGStore) ReplaceRoleScopes(ctx context.Context, roleID uuid.UUID, scopeIDs []uuid.UUID) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists); err != nil {
			return db.MapError(err)
		}
		if !exists {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_scopes WHERE role_id = $1 AND NOT (scope_id = ANY($2))`, roleID, scopeIDs); err != nil {
			return db.MapError(err)
		}
		for _, scopeID := range scopeIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO role_scopes (role_id, scope_id, created_at) VALUES ($1, $2, NOW())
				ON CONFLICT (role_id, scope_id) DO NOTHING`, roleID, scopeID); err != nil {
				return db.MapError(err)
			}
		}
		return nil
	})
}

func (s *PGStore) queryRoles(ctx context.Context, sql string, args ...any) ([]Role, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()
	roles := make([]Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, db.MapError(err)
	}
	return roles, nil
}

func (s *PGStore) queryScopes(ctx context.Context, sql string, args ...any) ([]Scope, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()
	scopes := make([]Scope, 0)
	for rows.Next() {
		scope, err := scanScope(rows)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, scope)
	}
	if err := rows.Err(); err != nil {
		return nil, db.MapError(err)
	}
	return scopes, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var r Role
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.IsSystem, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Role{}, db.MapError(err)
	}
	return r, nil
}

func scanScope(row pgx.Row) (Scope, error) {
	var s Scope
	if err := row.Scan(&s.ID, &s.Name, &s.Resource, &s.Action, &s.Description, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return Scope{}, db.MapError(err)
	}
	return s, nil
}

func execAffectingOne(ctx context.Context, q db.Querier, sql string, args ...any) error {
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ Store = (*PGStore)(nil)
