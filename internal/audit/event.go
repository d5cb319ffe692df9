// Package audit records security-relevant events: logins, authorization
// denials and grant changes.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the authorization core.
const (
	ActionLoginSucceeded = "auth.login"
	ActionLoginFailed    = "auth.login_failed"
	ActionLogout         = "auth.logout"
	ActionTokenRefreshed = "auth.refresh"
	ActionPasswordChange = "auth.password_changed"
	ActionAccessDenied   = "authz.denied"
	ActionRoleAssigned   = "rbac.role_assigned"
	ActionRoleRevoked    = "rbac.role_revoked"
	ActionScopeAssigned  = "rbac.scope_assigned"
	ActionScopeRevoked   = "rbac.scope_revoked"
	ActionRoleScopesSet  = "rbac.role_scopes_set"
	ActionRoleCreated    = "rbac.role_created"
	ActionRoleUpdated    = "rbac.role_updated"
	ActionRoleDeleted    = "rbac.role_deleted"
	ActionScopeCreated   = "rbac.scope_created"
	ActionScopeUpdated   = "rbac.scope_updated"
	ActionScopeDeleted   = "rbac.scope_deleted"
	ActionUserCreated    = "users.created"
	ActionUserUpdated    = "users.updated"
	ActionUserDeleted    = "users.deleted"
)

// Event is one audit record. ActorID is uuid.Nil when the requester is unknown.
type Event struct {
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id,omitempty"`
	ActorID  uuid.UUID      `json:"actor_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
	Level    slog.Level     `json:"-"`
}

// Recorder accepts audit events. Implementations never fail the caller;
// delivery problems are logged.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// Nop discards events.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Event) {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}
