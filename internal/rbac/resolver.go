package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/keystone-admin/keystone/internal/shared"
)

// Resolution strategies. A deployment uses exactly one.
const (
	StrategyJoin   = "join"
	StrategyInline = "inline"
)

// Resolver derives a user's effective permissions. Results are computed per
// call and never cached, so grant changes apply to the next request.
type Resolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) (PermissionSet, error)
	Strategy() string
}

// NewResolver selects a resolver by strategy name.
func NewResolver(strategy string, reader GraphReader) (Resolver, error) {
	switch strategy {
	case StrategyJoin, "":
		return JoinResolver{reader: reader}, nil
	case StrategyInline:
		return InlineResolver{reader: reader}, nil
	default:
		return nil, fmt.Errorf("rbac: unknown permission strategy %q", strategy)
	}
}

// JoinResolver unions the scopes of every role granted through user_roles.
type JoinResolver struct {
	reader GraphReader
}

// NewJoinResolver constructs a JoinResolver.
func NewJoinResolver(reader GraphReader) JoinResolver {
	return JoinResolver{reader: reader}
}

// Strategy implements Resolver.
func (JoinResolver) Strategy() string { return StrategyJoin }

// Resolve implements Resolver.
func (r JoinResolver) Resolve(ctx context.Context, userID uuid.UUID) (PermissionSet, error) {
	subject, ok, err := activeSubject(ctx, r.reader, userID)
	if err != nil || !ok {
		return PermissionSet{}, err
	}
	scopes, err := r.reader.ScopesForUser(ctx, subject.ID)
	if err != nil {
		return nil, fmt.Errorf("rbac: scopes for user: %w", err)
	}
	set := make(PermissionSet, len(scopes))
	for _, s := range scopes {
		set.Add(s.Canonical())
	}
	return set, nil
}

// InlineResolver combines the scopes of the user's single role with the
// permission list stored on the user record.
type InlineResolver struct {
	reader GraphReader
}

// NewInlineResolver constructs an InlineResolver.
func NewInlineResolver(reader GraphReader) InlineResolver {
	return InlineResolver{reader: reader}
}

// Strategy implements Resolver.
func (InlineResolver) Strategy() string { return StrategyInline }

// Resolve implements Resolver.
func (r InlineResolver) Resolve(ctx context.Context, userID uuid.UUID) (PermissionSet, error) {
	subject, ok, err := activeSubject(ctx, r.reader, userID)
	if err != nil || !ok {
		return PermissionSet{}, err
	}
	set := NewPermissionSet(subject.InlinePermissions...)
	if subject.PrimaryRoleID == nil {
		return set, nil
	}
	scopes, err := r.reader.ScopesForRole(ctx, *subject.PrimaryRoleID)
	if err != nil {
		return nil, fmt.Errorf("rbac: scopes for role: %w", err)
	}
	for _, s := range scopes {
		set.Add(s.Canonical())
	}
	return set, nil
}

// activeSubject loads the subject; unknown and inactive users report ok=false.
func activeSubject(ctx context.Context, reader GraphReader, userID uuid.UUID) (Subject, bool, error) {
	subject, err := reader.Subject(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Subject{}, false, nil
		}
		return Subject{}, false, fmt.Errorf("rbac: load subject: %w", err)
	}
	return subject, subject.IsActive, nil
}
