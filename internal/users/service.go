package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keystone-admin/keystone/internal/audit"
	"github.com/keystone-admin/keystone/internal/auth"
	"github.com/keystone-admin/keystone/internal/rbac"
	"github.com/keystone-admin/keystone/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filter ListFilter) ([]User, int, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	CreateUser(ctx context.Context, user User, roleIDs []uuid.UUID, assignedBy uuid.UUID) (*User, error)
	UpdateUser(ctx context.Context, user User) (*User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// GrantService is the slice of the permission graph the user endpoints use.
type GrantService interface {
	Strategy() string
	UserRoles(ctx context.Context, userID uuid.UUID) ([]rbac.Role, error)
	PermissionNames(ctx context.Context, userID uuid.UUID) ([]string, error)
	AssignRole(ctx context.Context, userID, roleID, assignedBy uuid.UUID) error
	RevokeRole(ctx context.Context, userID, roleID, actor uuid.UUID) error
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	grants GrantService
	audit  audit.Recorder
	logger *slog.Logger
	clock  func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, grants GrantService, recorder audit.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		grants: grants,
		audit:  audit.OrNop(recorder),
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// ListUsers returns one page of users.
func (s *Service) ListUsers(ctx context.Context, filter ListFilter) ([]User, shared.Pagination, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	users, total, err := s.repo.ListUsers(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(filter.Page.Page, filter.Page.PerPage, total), nil
}

// GetUser fetches a user.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser creates an account and grants its initial roles atomically.
// Under the inline strategy at most one role may be given.
func (s *Service) CreateUser(ctx context.Context, in CreateInput, actor uuid.UUID) (*User, error) {
	email := auth.FoldIdentifier(in.Email)
	username := auth.FoldIdentifier(in.Username)
	if email == "" || username == "" {
		return nil, fmt.Errorf("%w: email and username required", shared.ErrValidation)
	}
	if strings.Contains(username, "@") {
		return nil, fmt.Errorf("%w: username must not contain '@'", shared.ErrValidation)
	}
	hash, err := auth.HashSecret(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	user := User{
		ID:           uuid.New(),
		Email:        email,
		Username:     username,
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: hash,
		IsActive:     true,
		Permissions:  rbac.NewPermissionSet(in.Permissions...).Sorted(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}

	roleIDs := uniqueIDs(in.RoleIDs)
	if s.grants != nil && s.grants.Strategy() == rbac.StrategyInline {
		if len(roleIDs) > 1 {
			return nil, fmt.Errorf("%w: inline strategy allows one role per user", shared.ErrValidation)
		}
		if len(roleIDs) == 1 {
			user.RoleID = &roleIDs[0]
		}
		roleIDs = nil
	}

	created, err := s.repo.CreateUser(ctx, user, roleIDs, actor)
	if err != nil {
		return nil, fmt.Errorf("users: create: %w", err)
	}
	s.record(ctx, actor, audit.ActionUserCreated, created.ID, map[string]any{"email": created.Email, "roles": len(in.RoleIDs)})
	return created, nil
}

// UpdateUser applies changes to an account.
func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, in UpdateInput, actor uuid.UUID) (*User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Email != nil {
		if user.Email = auth.FoldIdentifier(*in.Email); user.Email == "" {
			return nil, fmt.Errorf("%w: email required", shared.ErrValidation)
		}
	}
	if in.Username != nil {
		if user.Username = auth.FoldIdentifier(*in.Username); user.Username == "" || strings.Contains(user.Username, "@") {
			return nil, fmt.Errorf("%w: invalid username", shared.ErrValidation)
		}
	}
	if in.FullName != nil {
		user.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}
	if in.Permissions != nil {
		user.Permissions = rbac.NewPermissionSet(*in.Permissions...).Sorted()
	}
	if in.Password != nil {
		hash, err := auth.HashSecret(*in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = s.clock()

	updated, err := s.repo.UpdateUser(ctx, *user)
	if err != nil {
		return nil, fmt.Errorf("users: update: %w", err)
	}
	s.record(ctx, actor, audit.ActionUserUpdated, id, nil)
	return updated, nil
}

// DeleteUser removes an account and its role grants.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID, actor uuid.UUID) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("users: delete: %w", err)
	}
	s.record(ctx, actor, audit.ActionUserDeleted, id, nil)
	return nil
}

// UserRoles lists the roles granted to an existing user.
func (s *Service) UserRoles(ctx context.Context, id uuid.UUID) ([]rbac.Role, error) {
	if _, err := s.repo.GetUser(ctx, id); err != nil {
		return nil, err
	}
	return s.grants.UserRoles(ctx, id)
}

// UserScopes lists the effective permissions of an existing user.
func (s *Service) UserScopes(ctx context.Context, id uuid.UUID) ([]string, error) {
	if _, err := s.repo.GetUser(ctx, id); err != nil {
		return nil, err
	}
	return s.grants.PermissionNames(ctx, id)
}

// AssignRole grants a role to a user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID, actor uuid.UUID) error {
	return s.grants.AssignRole(ctx, userID, roleID, actor)
}

// RevokeRole removes a role grant; absent grants are ignored.
func (s *Service) RevokeRole(ctx context.Context, userID, roleID, actor uuid.UUID) error {
	return s.grants.RevokeRole(ctx, userID, roleID, actor)
}

func (s *Service) record(ctx context.Context, actor uuid.UUID, action string, id uuid.UUID, meta map[string]any) {
	s.audit.Record(ctx, audit.Event{
		Action:   action,
		Entity:   "users",
		EntityID: id.String(),
		ActorID:  actor,
		Meta:     meta,
		Level:    slog.LevelInfo,
	})
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
