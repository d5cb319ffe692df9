// Package memdb is an in-process implementation of the user, role and scope
// persistence ports. It backs STORE_DRIVER=memory and the package tests.
//
// A single RWMutex guards every table, so each method is atomic and the
// unique-pair and cascade rules of the Postgres schema hold here as well.
package memdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keystone-admin/keystone/internal/auth"
	"github.com/keystone-admin/keystone/internal/rbac"
	"github.com/keystone-admin/keystone/internal/shared"
	"github.com/keystone-admin/keystone/internal/users"
)

type pair struct {
	left, right uuid.UUID
}

// Store holds users, roles, scopes and their join rows.
type Store struct {
	mu         sync.RWMutex
	users      map[uuid.UUID]auth.User
	roles      map[uuid.UUID]rbac.Role
	scopes     map[uuid.UUID]rbac.Scope
	userRoles  map[pair]rbac.UserRole
	roleScopes map[pair]rbac.RoleScope
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:      make(map[uuid.UUID]auth.User),
		roles:      make(map[uuid.UUID]rbac.Role),
		scopes:     make(map[uuid.UUID]rbac.Scope),
		userRoles:  make(map[pair]rbac.UserRole),
		roleScopes: make(map[pair]rbac.RoleScope),
	}
}

// --- users ---

// FindByIdentifier matches email or username exactly; callers fold first.
func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == identifier || u.Username == identifier {
			return cloneUser(u), nil
		}
	}
	return nil, shared.ErrNotFound
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneUser(u), nil
}

// UpdatePassword stores a new password hash.
func (s *Store) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = at
	s.users[id] = u
	return nil
}

// ListUsers returns one page of users ordered by creation time.
func (s *Store) ListUsers(ctx context.Context, filter users.ListFilter) ([]auth.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	search := strings.ToLower(filter.Search)
	matched := make([]auth.User, 0, len(s.users))
	for _, u := range s.users {
		if filter.Active != nil && u.IsActive != *filter.Active {
			continue
		}
		if search != "" && !strings.Contains(u.Email, search) && !strings.Contains(u.Username, search) &&
			!strings.Contains(strings.ToLower(u.FullName), search) {
			continue
		}
		matched = append(matched, *cloneUser(u))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	total := len(matched)
	start := filter.Page.Offset()
	if start < 0 || start > total {
		start = total
	}
	end := total
	if filter.Page.PerPage > 0 && start+filter.Page.PerPage < total {
		end = start + filter.Page.PerPage
	}
	return matched[start:end], total, nil
}

// CreateUser inserts a user and its initial role grants atomically.
func (s *Store) CreateUser(ctx context.Context, user auth.User, roleIDs []uuid.UUID, assignedBy uuid.UUID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.ID]; exists {
		return nil, shared.ErrConflict
	}
	for _, u := range s.users {
		if u.Email == user.Email || u.Username == user.Username {
			return nil, shared.ErrConflict
		}
	}
	if user.RoleID != nil {
		if _, ok := s.roles[*user.RoleID]; !ok {
			return nil, shared.ErrNotFound
		}
	}
	for _, roleID := range roleIDs {
		if _, ok := s.roles[roleID]; !ok {
			return nil, shared.ErrNotFound
		}
	}
	s.users[user.ID] = *cloneUser(user)
	for _, roleID := range roleIDs {
		s.userRoles[pair{user.ID, roleID}] = rbac.UserRole{
			UserID:     user.ID,
			RoleID:     roleID,
			AssignedBy: assignedBy,
			AssignedAt: user.CreatedAt,
		}
	}
	return cloneUser(user), nil
}

// UpdateUser replaces the mutable fields of a user.
func (s *Store) UpdateUser(ctx context.Context, user auth.User) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[user.ID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	for id, u := range s.users {
		if id != user.ID && (u.Email == user.Email || u.Username == user.Username) {
			return nil, shared.ErrConflict
		}
	}
	current.Email = user.Email
	current.Username = user.Username
	current.FullName = user.FullName
	current.PasswordHash = user.PasswordHash
	current.IsActive = user.IsActive
	current.Permissions = append([]string(nil), user.Permissions...)
	current.UpdatedAt = user.UpdatedAt
	s.users[user.ID] = current
	return cloneUser(current), nil
}

// DeleteUser removes a user and its user_roles rows.
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.users, id)
	for k := range s.userRoles {
		if k.left == id {
			delete(s.userRoles, k)
		}
	}
	return nil
}

// --- graph reads ---

// Subject loads the resolution view of a user.
func (s *Store) Subject(ctx context.Context, userID uuid.UUID) (rbac.Subject, error) {
	if err := ctx.Err(); err != nil {
		return rbac.Subject{}, transient(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return rbac.Subject{}, shared.ErrNotFound
	}
	return rbac.Subject{
		ID:                u.ID,
		IsActive:          u.IsActive,
		PrimaryRoleID:     cloneID(u.RoleID),
		InlinePermissions: append([]string(nil), u.Permissions...),
	}, nil
}

// ScopesForUser returns the distinct scopes reachable through user_roles.
func (s *Store) ScopesForUser(ctx context.Context, userID uuid.UUID) ([]rbac.Scope, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[uuid.UUID]struct{})
	out := make([]rbac.Scope, 0)
	for k := range s.userRoles {
		if k.left != userID {
			continue
		}
		for _, scope := range s.scopesForRoleLocked(k.right) {
			if _, dup := seen[scope.ID]; dup {
				continue
			}
			seen[scope.ID] = struct{}{}
			out = append(out, scope)
		}
	}
	sortScopes(out)
	return out, nil
}

// ScopesForRole returns the scopes granted to a role.
func (s *Store) ScopesForRole(ctx context.Context, roleID uuid.UUID) ([]rbac.Scope, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.scopesForRoleLocked(roleID)
	sortScopes(out)
	return out, nil
}

func (s *Store) scopesForRoleLocked(roleID uuid.UUID) []rbac.Scope {
	out := make([]rbac.Scope, 0)
	for k := range s.roleScopes {
		if k.left == roleID {
			out = append(out, s.scopes[k.right])
		}
	}
	return out
}

// --- roles ---

// CreateRole inserts a role and its initial scopes atomically.
func (s *Store) CreateRole(ctx context.Context, role rbac.Role, scopeIDs []uuid.UUID) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.roles[role.ID]; exists {
		return rbac.Role{}, shared.ErrConflict
	}
	for _, r := range s.roles {
		if r.Name == role.Name {
			return rbac.Role{}, shared.ErrConflict
		}
	}
	for _, scopeID := range scopeIDs {
		if _, ok := s.scopes[scopeID]; !ok {
			return rbac.Role{}, shared.ErrNotFound
		}
	}
	s.roles[role.ID] = role
	for _, scopeID := range scopeIDs {
		s.roleScopes[pair{role.ID, scopeID}] = rbac.RoleScope{RoleID: role.ID, ScopeID: scopeID, CreatedAt: role.CreatedAt}
	}
	return role, nil
}

// GetRole fetches a role by id.
func (s *Store) GetRole(ctx context.Context, id uuid.UUID) (rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	return r, nil
}

// GetRoleByName fetches a role by name.
func (s *Store) GetRoleByName(ctx context.Context, name string) (rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return rbac.Role{}, shared.ErrNotFound
}

// ListRoles returns roles ordered by name.
func (s *Store) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rbac.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sortRoles(out)
	return out, nil
}

// UpdateRole persists name and description changes.
func (s *Store) UpdateRole(ctx context.Context, role rbac.Role) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.roles[role.ID]
	if !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	for id, r := range s.roles {
		if id != role.ID && r.Name == role.Name {
			return rbac.Role{}, shared.ErrConflict
		}
	}
	current.Name = role.Name
	current.Description = role.Description
	current.UpdatedAt = role.UpdatedAt
	s.roles[role.ID] = current
	return current, nil
}

// DeleteRole removes a role, its join rows and any primary-role references.
func (s *Store) DeleteRole(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.roles, id)
	for k := range s.userRoles {
		if k.right == id {
			delete(s.userRoles, k)
		}
	}
	for k := range s.roleScopes {
		if k.left == id {
			delete(s.roleScopes, k)
		}
	}
	for uid, u := range s.users {
		if u.RoleID != nil && *u.RoleID == id {
			u.RoleID = nil
			s.users[uid] = u
		}
	}
	return nil
}

// --- scopes ---

// CreateScope inserts a scope.
func (s *Store) CreateScope(ctx context.Context, scope rbac.Scope) (rbac.Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.scopes[scope.ID]; exists {
		return rbac.Scope{}, shared.ErrConflict
	}
	for _, sc := range s.scopes {
		if sc.Name == scope.Name {
			return rbac.Scope{}, shared.ErrConflict
		}
	}
	s.scopes[scope.ID] = scope
	return scope, nil
}

// GetScope fetches a scope by id.
func (s *Store) GetScope(ctx context.Context, id uuid.UUID) (rbac.Scope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scopes[id]
	if !ok {
		return rbac.Scope{}, shared.ErrNotFound
	}
	return sc, nil
}

// GetScopeByName fetches a scope by canonical name.
func (s *Store) GetScopeByName(ctx context.Context, name string) (rbac.Scope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sc := range s.scopes {
		if sc.Name == name {
			return sc, nil
		}
	}
	return rbac.Scope{}, shared.ErrNotFound
}

// ListScopes returns scopes ordered by name.
func (s *Store) ListScopes(ctx context.Context) ([]rbac.Scope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rbac.Scope, 0, len(s.scopes))
	for _, sc := range s.scopes {
		out = append(out, sc)
	}
	sortScopes(out)
	return out, nil
}

// UpdateScope persists scope changes.
func (s *Store) UpdateScope(ctx context.Context, scope rbac.Scope) (rbac.Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scopes[scope.ID]; !ok {
		return rbac.Scope{}, shared.ErrNotFound
	}
	for id, sc := range s.scopes {
		if id != scope.ID && sc.Name == scope.Name {
			return rbac.Scope{}, shared.ErrConflict
		}
	}
	s.scopes[scope.ID] = scope
	return scope, nil
}

// DeleteScope removes a scope and its role_scopes rows.
func (s *Store) DeleteScope(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scopes[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.scopes, id)
	for k := range s.roleScopes {
		if k.right == id {
			delete(s.roleScopes, k)
		}
	}
	return nil
}

// --- grants ---

// InsertUserRole adds a user_roles row.
func (s *Store) InsertUserRole(ctx context.Context, ur rbac.UserRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[ur.UserID]; !ok {
		return shared.ErrNotFound
	}
	if _, ok := s.roles[ur.RoleID]; !ok {
		return shared.ErrNotFound
	}
	key := pair{ur.UserID, ur.RoleID}
	if _, exists := s.userRoles[key]; exists {
		return shared.ErrConflict
	}
	s.userRoles[key] = ur
	return nil
}

// DeleteUserRole removes a user_roles row.
func (s *Store) DeleteUserRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pair{userID, roleID}
	if _, exists := s.userRoles[key]; !exists {
		return false, nil
	}
	delete(s.userRoles, key)
	return true, nil
}

// RolesForUser lists roles granted through user_roles.
func (s *Store) RolesForUser(ctx context.Context, userID uuid.UUID) ([]rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rbac.Role, 0)
	for k := range s.userRoles {
		if k.left == userID {
			out = append(out, s.roles[k.right])
		}
	}
	sortRoles(out)
	return out, nil
}

// SetPrimaryRole sets the user's single role when none is held.
func (s *Store) SetPrimaryRole(ctx context.Context, userID, roleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return shared.ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return shared.ErrNotFound
	}
	if u.RoleID != nil {
		return shared.ErrConflict
	}
	u.RoleID = cloneID(&roleID)
	s.users[userID] = u
	return nil
}

// ClearPrimaryRole clears the user's role when it equals roleID.
func (s *Store) ClearPrimaryRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.RoleID == nil || *u.RoleID != roleID {
		return false, nil
	}
	u.RoleID = nil
	s.users[userID] = u
	return true, nil
}

// InsertRoleScope adds a role_scopes row.
func (s *Store) InsertRoleScope(ctx context.Context, rs rbac.RoleScope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[rs.RoleID]; !ok {
		return shared.ErrNotFound
	}
	if _, ok := s.scopes[rs.ScopeID]; !ok {
		return shared.ErrNotFound
	}
	key := pair{rs.RoleID, rs.ScopeID}
	if _, exists := s.roleScopes[key]; exists {
		return shared.ErrConflict
	}
	s.roleScopes[key] = rs
	return nil
}

// DeleteRoleScope removes a role_scopes row.
func (s *Store) DeleteRoleScope(ctx context.Context, roleID, scopeID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pair{roleID, scopeID}
	if _, exists := s.roleScopes[key]; !exists {
		return false, nil
	}
	delete(s.roleScopes, key)
	return true, nil
}

// ReplaceRoleScopes swaps the scope set of a role.
func (s *Store) ReplaceRoleScopes(ctx context.Context, roleID uuid.UUID, scopeIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return shared.ErrNotFound
	}
	for _, scopeID := range scopeIDs {
		if _, ok := s.scopes[scopeID]; !ok {
			return shared.ErrNotFound
		}
	}
	keep := make(map[uuid.UUID]struct{}, len(scopeIDs))
	for _, scopeID := range scopeIDs {
		keep[scopeID] = struct{}{}
	}
	for k := range s.roleScopes {
		if _, ok := keep[k.right]; k.left == roleID && !ok {
			delete(s.roleScopes, k)
		}
	}
	now := time.Now().UTC()
	for scopeID := range keep {
		key := pair{roleID, scopeID}
		if _, exists := s.roleScopes[key]; !exists {
			s.roleScopes[key] = rbac.RoleScope{RoleID: roleID, ScopeID: scopeID, CreatedAt: now}
		}
	}
	return nil
}

func transient(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", shared.ErrTransient, err)
	}
	return err
}

func cloneUser(u auth.User) *auth.User {
	u.RoleID = cloneID(u.RoleID)
	if u.Permissions != nil {
		u.Permissions = append([]string{}, u.Permissions...)
	} else {
		u.Permissions = []string{}
	}
	return &u
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func sortRoles(roles []rbac.Role) {
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
}

func sortScopes(scopes []rbac.Scope) {
	sort.Slice(scopes, func(i, j int) bool { return scopes[i].Name < scopes[j].Name })
}

var (
	_ rbac.Store           = (*Store)(nil)
	_ auth.Repository      = (*Store)(nil)
	_ users.RepositoryPort = (*Store)(nil)
)
