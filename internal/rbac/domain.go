package rbac

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents a named bundle of scopes.
type Role struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Scope represents an atomic capability named resource:action.
type Scope struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Canonical returns the resource:action form used in permission checks.
func (s Scope) Canonical() string {
	return CanonicalName(s.Resource, s.Action)
}

// CanonicalName joins a resource and action.
func CanonicalName(resource, action string) string {
	return NormalizePermission(resource + ":" + action)
}

// UserRole ties a role to a user.
type UserRole struct {
	UserID     uuid.UUID
	RoleID     uuid.UUID
	AssignedBy uuid.UUID
	AssignedAt time.Time
}

// RoleScope ties a scope to a role.
type RoleScope struct {
	RoleID    uuid.UUID
	ScopeID   uuid.UUID
	CreatedAt time.Time
}

// Subject is the slice of a user record the graph needs for resolution.
// PrimaryRoleID and InlinePermissions are only read by the inline strategy.
type Subject struct {
	ID                uuid.UUID
	IsActive          bool
	PrimaryRoleID     *uuid.UUID
	InlinePermissions []string
}

// PermissionSet is a deduplicated set of resource:action strings.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from names, normalizing each one.
func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, n := range names {
		set.Add(n)
	}
	return set
}

// Add inserts a permission; blank names are ignored.
func (s PermissionSet) Add(name string) {
	name = NormalizePermission(name)
	if name == "" {
		return
	}
	s[name] = struct{}{}
}

// Has reports membership.
func (s PermissionSet) Has(name string) bool {
	_, ok := s[NormalizePermission(name)]
	return ok
}

// Sorted returns the permissions in lexical order.
func (s PermissionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// NormalizePermission trims and lowercases a permission name.
func NormalizePermission(p string) string {
	return strings.TrimSpace(strings.ToLower(p))
}
