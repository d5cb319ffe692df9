// Package authz is the authorization gate: it turns an Authorization header
// and a required permission into an allow or deny decision.
//
// A check moves through UNAUTHENTICATED, TOKEN_VALIDATED and
// PRINCIPAL_RESOLVED before ending AUTHORIZED or DENIED. The gate holds no
// mutable state and never writes to the permission graph.
package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/keystone-admin/keystone/internal/auth"
	"github.com/keystone-admin/keystone/internal/rbac"
	"github.com/keystone-admin/keystone/internal/shared"
	"github.com/keystone-admin/keystone/internal/token"
)

// DefaultLookupTimeout bounds each store lookup when none is configured.
const DefaultLookupTimeout = 2 * time.Second

// Reason explains a decision.
type Reason string

// Decision reasons. Transient is not a denial: the lookup failed and the
// caller may retry.
const (
	ReasonNone               Reason = ""
	ReasonMissingCredentials Reason = "missing_credentials"
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonForbidden          Reason = "forbidden"
	ReasonTransient          Reason = "transient"
)

// Denial details refine a Reason for the audit trail. Clients only ever
// see the Reason.
const (
	DetailNoBearer          = "no_bearer"
	DetailBadToken          = "bad_token"
	DetailBadSignature      = "bad_signature"
	DetailExpired           = "expired"
	DetailRevoked           = "revoked"
	DetailUnknownSubject    = "unknown_subject"
	DetailInactive          = "inactive"
	DetailMissingPermission = "missing_permission"
)

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed   bool
	Reason    Reason
	Detail    string
	Principal *shared.Principal
	// Subject is the token subject once the token decodes, set even when the
	// subject never resolves to a principal.
	Subject uuid.UUID
	// Cause is the internal error behind the decision. It is logged, never
	// sent to clients.
	Cause error
}

// Err maps the decision onto the shared error taxonomy; nil when allowed.
func (d Decision) Err() error {
	switch d.Reason {
	case ReasonNone:
		if d.Allowed {
			return nil
		}
		return shared.ErrForbidden
	case ReasonMissingCredentials:
		return shared.ErrMissingCredentials
	case ReasonInvalidCredentials:
		return shared.ErrInvalidCredentials
	case ReasonForbidden:
		return shared.ErrForbidden
	default:
		return shared.ErrTransient
	}
}

// Outcome is the metric label for the decision.
func (d Decision) Outcome() string {
	if d.Allowed {
		return "authorized"
	}
	return string(d.Reason)
}

// UserLookup loads the principal's account.
type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*auth.User, error)
}

// RevocationChecker reports revoked token ids.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// DecisionObserver receives one call per decision.
type DecisionObserver interface {
	ObserveDecision(outcome string)
}

// Gate evaluates authorization requests.
type Gate struct {
	codec    *token.Codec
	users    UserLookup
	resolver rbac.Resolver
	denylist RevocationChecker
	observer DecisionObserver
	timeout  time.Duration
	logger   *slog.Logger
	clock    func() time.Time
}

// Option customises a Gate.
type Option func(*Gate)

// WithDenylist rejects tokens whose id has been revoked.
func WithDenylist(d RevocationChecker) Option {
	return func(g *Gate) { g.denylist = d }
}

// WithObserver records decisions, typically into Prometheus.
func WithObserver(o DecisionObserver) Option {
	return func(g *Gate) { g.observer = o }
}

// WithLookupTimeout bounds each lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithClock overrides the time source used to check expiry.
func WithClock(clock func() time.Time) Option {
	return func(g *Gate) { g.clock = clock }
}

// WithLogger sets the logger for decision causes.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGate constructs a Gate.
func NewGate(codec *token.Codec, users UserLookup, resolver rbac.Resolver, opts ...Option) *Gate {
	g := &Gate{
		codec:    codec,
		users:    users,
		resolver: resolver,
		timeout:  DefaultLookupTimeout,
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize decides whether the bearer of header holds required. An empty
// required permission only authenticates.
func (g *Gate) Authorize(ctx context.Context, header, required string) Decision {
	d := g.authorize(ctx, header, rbac.NormalizePermission(required))
	if g.observer != nil {
		g.observer.ObserveDecision(d.Outcome())
	}
	if d.Cause != nil {
		level := slog.LevelDebug
		switch d.Reason {
		case ReasonTransient:
			level = slog.LevelWarn
		case ReasonInvalidCredentials:
			level = slog.LevelInfo
		}
		g.logger.Log(ctx, level, "authz decision",
			slog.String("reason", string(d.Reason)),
			slog.String("detail", d.Detail),
			slog.String("subject", subjectString(d.Subject)),
			slog.String("permission", required),
			slog.Any("error", d.Cause))
	}
	return d
}

// Authenticate runs the credential stages only.
func (g *Gate) Authenticate(ctx context.Context, header string) Decision {
	return g.Authorize(ctx, header, "")
}

func (g *Gate) authorize(ctx context.Context, header, required string) Decision {
	raw, ok := ParseBearer(header)
	if !ok {
		return deny(ReasonMissingCredentials, DetailNoBearer, nil, nil)
	}

	claims, err := g.codec.Decode(raw, g.clock())
	if err != nil {
		return deny(ReasonInvalidCredentials, decodeDetail(err), nil, err)
	}

	if g.denylist != nil {
		revoked, err := g.lookupRevoked(ctx, claims.ID)
		if err != nil {
			return withSubject(deny(ReasonTransient, "", nil, err), claims.Subject)
		}
		if revoked {
			return withSubject(deny(ReasonInvalidCredentials, DetailRevoked, nil,
				fmt.Errorf("token id %s revoked", claims.ID)), claims.Subject)
		}
	}

	user, perms, err := g.resolve(ctx, claims.Subject)
	if err != nil {
		if shared.IsNotFound(err) {
			return withSubject(deny(ReasonInvalidCredentials, DetailUnknownSubject, nil, err), claims.Subject)
		}
		return withSubject(deny(ReasonTransient, "", nil, err), claims.Subject)
	}
	if !auth.IsActive(user) {
		return withSubject(deny(ReasonInvalidCredentials, DetailInactive, nil,
			errors.New("subject inactive")), claims.Subject)
	}

	principal := &shared.Principal{
		UserID:         user.ID,
		Email:          user.Email,
		Username:       user.Username,
		FullName:       user.FullName,
		TokenID:        claims.ID,
		TokenExpiresAt: claims.ExpiresAt,
		Permissions:    perms.Sorted(),
	}
	if required != "" && !perms.Has(required) {
		return withSubject(deny(ReasonForbidden, DetailMissingPermission, principal,
			fmt.Errorf("missing %s", required)), claims.Subject)
	}
	return Decision{Allowed: true, Principal: principal, Subject: claims.Subject}
}

func decodeDetail(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return DetailExpired
	case errors.Is(err, token.ErrInvalidSignature):
		return DetailBadSignature
	default:
		return DetailBadToken
	}
}

// resolve loads the user and its permissions concurrently under the lookup
// timeout.
func (g *Gate) resolve(ctx context.Context, userID uuid.UUID) (*auth.User, rbac.PermissionSet, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var (
		user  *auth.User
		perms rbac.PermissionSet
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		u, err := g.users.GetUser(egCtx, userID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		user = u
		return nil
	})
	eg.Go(func() error {
		p, err := g.resolver.Resolve(egCtx, userID)
		if err != nil {
			return fmt.Errorf("resolve permissions: %w", err)
		}
		perms = p
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", shared.ErrTransient, err)
	}
	return user, perms, nil
}

func (g *Gate) lookupRevoked(ctx context.Context, tokenID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.denylist.IsRevoked(ctx, tokenID)
}

func deny(reason Reason, detail string, principal *shared.Principal, cause error) Decision {
	return Decision{Reason: reason, Detail: detail, Principal: principal, Cause: cause}
}

func withSubject(d Decision, subject uuid.UUID) Decision {
	d.Subject = subject
	return d
}

func subjectString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

// ParseBearer extracts the token from an Authorization header value. The
// scheme is case-insensitive; anything other than "Bearer <token>" fails.
func ParseBearer(header string) (string, bool) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t") {
		return "", false
	}
	return raw, true
}
