// Package seed installs the default roles, scopes and administrator account.
// Every step checks for existing rows first, so running it again is a no-op.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/keystone-admin/keystone/internal/auth"
	"github.com/keystone-admin/keystone/internal/rbac"
	"github.com/keystone-admin/keystone/internal/shared"
	"github.com/keystone-admin/keystone/internal/users"
)

// Admin describes the bootstrap administrator.
type Admin struct {
	Email    string
	Username string
	FullName string
	Password string
}

// DefaultAdmin is the account created on first start. Its password must be
// changed after the first login.
var DefaultAdmin = Admin{
	Email:    "admin@example.com",
	Username: "admin",
	FullName: "System Administrator",
	Password: "admin123",
}

var defaultRoles = []rbac.RoleInput{
	{Name: shared.RoleAdmin, Description: "Administrator with full system access", IsSystem: true},
	{Name: shared.RoleUser, Description: "Regular user with basic access", IsSystem: true},
	{Name: shared.RoleModerator, Description: "Moderator with limited administrative access", IsSystem: true},
}

var defaultScopes = []rbac.ScopeInput{
	{Resource: "user", Action: "read", Description: "Read user information"},
	{Resource: "user", Action: "write", Description: "Create and update users"},
	{Resource: "user", Action: "delete", Description: "Delete users"},
	{Resource: "role", Action: "read", Description: "Read role information"},
	{Resource: "role", Action: "write", Description: "Create and update roles"},
	{Resource: "role", Action: "delete", Description: "Delete roles"},
	{Resource: "scope", Action: "read", Description: "Read scope information"},
	{Resource: "scope", Action: "write", Description: "Create and update scopes"},
	{Resource: "scope", Action: "delete", Description: "Delete scopes"},
}

// AccountFinder looks accounts up by folded email or username.
type AccountFinder interface {
	FindByIdentifier(ctx context.Context, identifier string) (*auth.User, error)
}

// Result summarises what a run created.
type Result struct {
	Scopes       int
	Roles        int
	AdminID      uuid.UUID
	AdminCreated bool
}

// Seeder installs default data through the regular services.
type Seeder struct {
	graph    *rbac.Service
	users    *users.Service
	accounts AccountFinder
	logger   *slog.Logger
}

// New constructs a Seeder.
func New(graph *rbac.Service, userService *users.Service, accounts AccountFinder, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{graph: graph, users: userService, accounts: accounts, logger: logger}
}

// Run seeds scopes, system roles, the admin role's grants and the admin account.
func (s *Seeder) Run(ctx context.Context, admin Admin) (Result, error) {
	var res Result

	scopeIDs := make([]uuid.UUID, 0, len(defaultScopes))
	for _, in := range defaultScopes {
		scope, err := s.graph.EnsureScope(ctx, in, uuid.Nil)
		if err != nil {
			return res, fmt.Errorf("seed: scope %s:%s: %w", in.Resource, in.Action, err)
		}
		scopeIDs = append(scopeIDs, scope.ID)
	}
	res.Scopes = len(scopeIDs)

	var adminRole rbac.Role
	for _, in := range defaultRoles {
		role, err := s.graph.EnsureRole(ctx, in, uuid.Nil)
		if err != nil {
			return res, fmt.Errorf("seed: role %s: %w", in.Name, err)
		}
		if role.Name == shared.RoleAdmin {
			adminRole = role
		}
		res.Roles++
	}

	for _, scopeID := range scopeIDs {
		err := s.graph.AssignScope(ctx, adminRole.ID, scopeID, uuid.Nil)
		if err != nil && !errors.Is(err, shared.ErrConflict) {
			return res, fmt.Errorf("seed: grant admin scope: %w", err)
		}
	}

	existing, err := s.accounts.FindByIdentifier(ctx, auth.FoldIdentifier(admin.Email))
	switch {
	case err == nil:
		res.AdminID = existing.ID
		s.logger.Info("seed: admin account already exists", slog.String("email", existing.Email))
		return res, nil
	case !shared.IsNotFound(err):
		return res, fmt.Errorf("seed: find admin: %w", err)
	}

	user, err := s.users.CreateUser(ctx, users.CreateInput{
		Email:    admin.Email,
		Username: admin.Username,
		FullName: admin.FullName,
		Password: admin.Password,
		RoleIDs:  []uuid.UUID{adminRole.ID},
	}, uuid.Nil)
	if err != nil {
		return res, fmt.Errorf("seed: create admin: %w", err)
	}
	res.AdminID = user.ID
	res.AdminCreated = true
	s.logger.Warn("seed: default admin created, change its password after first login",
		slog.String("email", user.Email))
	return res, nil
}
