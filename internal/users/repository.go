package users

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keystone-admin/keystone/internal/auth"
	"github.com/keystone-admin/keystone/internal/platform/db"
	"github.com/keystone-admin/keystone/internal/shared"
)

const listWhere = ` WHERE ($1 = '' OR email ILIKE '%' || $1 || '%' OR username ILIKE '%' || $1 || '%' OR full_name ILIKE '%' || $1 || '%')
	AND ($2::boolean IS NULL OR is_active = $2)`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns one page of users and the total matching count.
func (r *Repository) ListUsers(ctx context.Context, filter ListFilter) ([]User, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+listWhere, filter.Search, filter.Active).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+auth.UserColumns+` FROM users`+listWhere+`
		ORDER BY created_at, id LIMIT $3 OFFSET $4`,
		filter.Search, filter.Active, filter.Page.PerPage, filter.Page.Offset())
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()

	users := make([]User, 0, filter.Page.PerPage)
	for rows.Next() {
		u, err := auth.ScanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.MapError(err)
	}
	return users, total, nil
}

// GetUser fetches a user by id.
func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return auth.ScanUser(r.pool.QueryRow(ctx, `SELECT `+auth.UserColumns+` FROM users WHERE id = $1`, id))
}

// CreateUser inserts the user and its initial role grants in one transaction.
func (r *Repository) CreateUser(ctx context.Context, user User, roleIDs []uuid.UUID, assignedBy uuid.UUID) (*User, error) {
	var by *uuid.UUID
	if assignedBy != uuid.Nil {
		by = &assignedBy
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO users (`+auth.UserColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			user.ID, user.Email, user.Username, user.FullName, user.PasswordHash, user.IsActive,
			user.RoleID, user.Permissions, user.CreatedAt, user.UpdatedAt); err != nil {
			return db.MapError(err)
		}
		for _, roleID := range roleIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id, assigned_by, assigned_at) VALUES ($1, $2, $3, $4)`,
				user.ID, roleID, by, user.CreatedAt); err != nil {
				return db.MapError(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser persists profile, status, password and inline permission changes.
func (r *Repository) UpdateUser(ctx context.Context, user User) (*User, error) {
	return auth.ScanUser(r.pool.QueryRow(ctx, `UPDATE users SET email = $2, username = $3, full_name = $4,
		password_hash = $5, is_active = $6, permissions = $7, updated_at = $8
		WHERE id = $1 RETURNING `+auth.UserColumns,
		user.ID, user.Email, user.Username, user.FullName, user.PasswordHash, user.IsActive, user.Permissions, user.UpdatedAt))
}

// DeleteUser removes a user; user_roles rows cascade.
func (r *Repository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)
