package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keystone-admin/keystone/internal/platform/db"
	"github.com/keystone-admin/keystone/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	// FindByIdentifier matches a folded identifier against email or username.
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error
}

// UserColumns is the column list scanned by ScanUser.
const UserColumns = `id, email, username, full_name, password_hash, is_active, role_id, permissions, created_at, updated_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByIdentifier fetches a user by email or username.
func (r *PGRepository) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	return ScanUser(r.pool.QueryRow(ctx, `SELECT `+UserColumns+` FROM users WHERE email = $1 OR username = $1 LIMIT 1`, identifier))
}

// GetUser fetches a user by id.
func (r *PGRepository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return ScanUser(r.pool.QueryRow(ctx, `SELECT `+UserColumns+` FROM users WHERE id = $1`, id))
}

// UpdatePassword stores a new password hash.
func (r *PGRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// RowScanner is satisfied by pgx.Row and pgx.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

// ScanUser reads one row selected with UserColumns.
func ScanUser(row RowScanner) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.PasswordHash, &u.IsActive,
		&u.RoleID, &u.Permissions, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, db.MapError(err)
	}
	if u.Permissions == nil {
		u.Permissions = []string{}
	}
	return &u, nil
}

var _ Repository = (*PGRepository)(nil)
