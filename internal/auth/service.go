package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/keystone-admin/keystone/internal/audit"
	"github.com/keystone-admin/keystone/internal/shared"
	"github.com/keystone-admin/keystone/internal/token"
)

// TokenType is the scheme clients present tokens with.
const TokenType = "bearer"

// GrantLookup supplies the role and permission names embedded in tokens and
// returned by Me.
type GrantLookup interface {
	RoleNames(ctx context.Context, userID uuid.UUID) ([]string, error)
	PermissionNames(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// LoginObserver counts login attempts.
type LoginObserver interface {
	ObserveLogin(success bool)
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	creds    *CredentialStore
	codec    *token.Codec
	grants   GrantLookup
	denylist Denylist
	audit    audit.Recorder
	observer LoginObserver
	logger   *slog.Logger
	clock    func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, codec *token.Codec, grants GrantLookup, recorder audit.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		creds:  NewCredentialStore(repo),
		codec:  codec,
		grants: grants,
		audit:  audit.OrNop(recorder),
		logger: logger,
		clock:  time.Now,
	}
}

// WithDenylist enables token revocation on logout.
func (s *Service) WithDenylist(d Denylist) *Service {
	s.denylist = d
	return s
}

// WithObserver attaches login metrics.
func (s *Service) WithObserver(o LoginObserver) *Service {
	s.observer = o
	return s
}

// Login verifies credentials and issues a token for an active user.
func (s *Service) Login(ctx context.Context, identifier, secret string, meta LoginMeta) (LoginResult, error) {
	user, err := s.creds.Verify(ctx, identifier, secret)
	if err == nil && !IsActive(user) {
		err = shared.ErrInvalidCredentials
	}
	if err != nil {
		s.observe(false)
		s.audit.Record(ctx, audit.Event{
			Action: audit.ActionLoginFailed,
			Entity: "users",
			Meta:   map[string]any{"identifier": FoldIdentifier(identifier), "ip": meta.IP},
			Level:  slog.LevelWarn,
		})
		return LoginResult{}, err
	}
	result, err := s.issue(ctx, user)
	if err != nil {
		return LoginResult{}, err
	}
	s.observe(true)
	s.audit.Record(ctx, audit.Event{
		Action:   audit.ActionLoginSucceeded,
		Entity:   "users",
		EntityID: user.ID.String(),
		ActorID:  user.ID,
		Meta:     map[string]any{"ip": meta.IP, "user_agent": meta.UserAgent},
		Level:    slog.LevelInfo,
	})
	return result, nil
}

// Refresh issues a fresh token for the current principal.
func (s *Service) Refresh(ctx context.Context, p *shared.Principal) (LoginResult, error) {
	user, err := s.activeUser(ctx, p)
	if err != nil {
		return LoginResult{}, err
	}
	result, err := s.issue(ctx, user)
	if err != nil {
		return LoginResult{}, err
	}
	s.audit.Record(ctx, audit.Event{
		Action:   audit.ActionTokenRefreshed,
		Entity:   "users",
		EntityID: user.ID.String(),
		ActorID:  user.ID,
		Level:    slog.LevelInfo,
	})
	return result, nil
}

// Logout is advisory unless a denylist is configured, in which case the
// presented token id is revoked until it would have expired.
func (s *Service) Logout(ctx context.Context, p *shared.Principal) error {
	if p == nil {
		return shared.ErrMissingCredentials
	}
	if s.denylist != nil {
		if err := s.denylist.Revoke(ctx, p.TokenID, p.TokenExpiresAt); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrTransient, err)
		}
	}
	s.audit.Record(ctx, audit.Event{
		Action:   audit.ActionLogout,
		Entity:   "users",
		EntityID: p.UserID.String(),
		ActorID:  p.UserID,
		Meta:     map[string]any{"revoked": s.denylist != nil},
		Level:    slog.LevelInfo,
	})
	return nil
}

// Me returns the principal summary with current grants.
func (s *Service) Me(ctx context.Context, p *shared.Principal) (PrincipalSummary, error) {
	user, err := s.activeUser(ctx, p)
	if err != nil {
		return PrincipalSummary{}, err
	}
	return s.summary(ctx, user)
}

// ChangePassword replaces the principal's secret after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, p *shared.Principal, current, next string) error {
	user, err := s.activeUser(ctx, p)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return fmt.Errorf("%w: current password is incorrect", shared.ErrValidation)
	}
	hash, err := HashSecret(next)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, hash, s.clock().UTC()); err != nil {
		return fmt.Errorf("auth: update password: %w", err)
	}
	s.audit.Record(ctx, audit.Event{
		Action:   audit.ActionPasswordChange,
		Entity:   "users",
		EntityID: user.ID.String(),
		ActorID:  user.ID,
		Level:    slog.LevelInfo,
	})
	return nil
}

func (s *Service) activeUser(ctx context.Context, p *shared.Principal) (*User, error) {
	if p == nil {
		return nil, shared.ErrMissingCredentials
	}
	user, err := s.repo.GetUser(ctx, p.UserID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: load user: %w", err)
	}
	if !IsActive(user) {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) issue(ctx context.Context, user *User) (LoginResult, error) {
	summary, err := s.summary(ctx, user)
	if err != nil {
		return LoginResult{}, err
	}
	now := s.clock()
	raw, err := s.codec.IssueWithSnapshot(user.ID, now, 0, token.Snapshot{
		Roles:       summary.Roles,
		Permissions: summary.Permissions,
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: issue token: %w", err)
	}
	claims, err := s.codec.Decode(raw, now)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: decode issued token: %w", err)
	}
	return LoginResult{
		Token:     raw,
		TokenType: TokenType,
		ExpiresAt: claims.ExpiresAt,
		Principal: summary,
	}, nil
}

func (s *Service) summary(ctx context.Context, user *User) (PrincipalSummary, error) {
	summary := PrincipalSummary{
		ID:          user.ID,
		Email:       user.Email,
		Username:    user.Username,
		FullName:    user.FullName,
		Roles:       []string{},
		Permissions: []string{},
	}
	if s.grants == nil {
		return summary, nil
	}
	roles, err := s.grants.RoleNames(ctx, user.ID)
	if err != nil {
		return PrincipalSummary{}, fmt.Errorf("auth: role names: %w", err)
	}
	perms, err := s.grants.PermissionNames(ctx, user.ID)
	if err != nil {
		return PrincipalSummary{}, fmt.Errorf("auth: permission names: %w", err)
	}
	summary.Roles = roles
	summary.Permissions = perms
	return summary, nil
}

func (s *Service) observe(success bool) {
	if s.observer != nil {
		s.observer.ObserveLogin(success)
	}
}
