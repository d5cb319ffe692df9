package authz

import (
	"log/slog"
	"net/http"

	"github.com/keystone-admin/keystone/internal/audit"
	"github.com/keystone-admin/keystone/internal/platform/httpx"
	"github.com/keystone-admin/keystone/internal/shared"
)

// Middleware wires the gate into chi route groups.
type Middleware struct {
	gate   *Gate
	audit  audit.Recorder
	logger *slog.Logger
}

// NewMiddleware constructs the HTTP adapter for gate.
func NewMiddleware(gate *Gate, recorder audit.Recorder, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{gate: gate, audit: audit.OrNop(recorder), logger: logger}
}

// Authenticate requires a valid, active principal.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return m.guard("", next)
}

// Require requires a principal holding permission.
func (m *Middleware) Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.guard(permission, next)
	}
}

// RequireAny passes when the principal holds at least one permission.
func (m *Middleware) RequireAny(permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := m.gate.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if d.Allowed {
				for _, p := range permissions {
					if d.Principal.Has(p) {
						next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), d.Principal)))
						return
					}
				}
				d = withSubject(deny(ReasonForbidden, DetailMissingPermission, d.Principal, nil), d.Subject)
			}
			m.reject(w, r, d, permissions...)
		})
	}
}

func (m *Middleware) guard(permission string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := m.gate.Authorize(r.Context(), r.Header.Get("Authorization"), permission)
		if !d.Allowed {
			m.reject(w, r, d, permission)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), d.Principal)))
	})
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, d Decision, permissions ...string) {
	if d.Reason == ReasonTransient {
		m.logger.Warn("authz lookup failed", slog.String("path", r.URL.Path), slog.Any("error", d.Cause))
	} else {
		actor := d.Subject
		if d.Principal != nil {
			actor = d.Principal.UserID
		}
		meta := map[string]any{
			"reason": string(d.Reason),
			"detail": d.Detail,
			"path":   r.URL.Path,
			"method": r.Method,
		}
		if len(permissions) == 1 && permissions[0] != "" {
			meta["permission"] = permissions[0]
		} else if len(permissions) > 1 {
			meta["permission"] = permissions
		}
		m.audit.Record(r.Context(), audit.Event{
			Action:  audit.ActionAccessDenied,
			Entity:  "authz",
			ActorID: actor,
			Meta:    meta,
			Level:   slog.LevelWarn,
		})
	}
	httpx.RespondError(w, d.Err())
}

var _ httpx.Guard = (*Middleware)(nil)
