package users

import (
	"github.com/google/uuid"

	"github.com/keystone-admin/keystone/internal/auth"
	"github.com/keystone-admin/keystone/internal/shared"
)

// User is the account record managed by this package.
type User = auth.User

// CreateInput carries fields for user creation.
type CreateInput struct {
	Email       string
	Username    string
	FullName    string
	Password    string
	IsActive    *bool
	RoleIDs     []uuid.UUID
	Permissions []string
}

// UpdateInput carries optional user changes.
type UpdateInput struct {
	Email       *string
	Username    *string
	FullName    *string
	Password    *string
	IsActive    *bool
	Permissions *[]string
}

// ListFilter narrows user listings.
type ListFilter struct {
	Page   shared.PageRequest
	Search string
	Active *bool
}
