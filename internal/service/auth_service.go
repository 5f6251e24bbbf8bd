package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"adminpanel/api/internal/ids"
	"adminpanel/api/internal/metrics"
	"adminpanel/api/internal/models"
	"adminpanel/api/internal/rbac"
	"adminpanel/api/internal/repository"
	"adminpanel/api/internal/security"
	"adminpanel/api/internal/session"
)

// dummyPassword is verified against when the username does not exist so both
// failure paths pay for one hash verification.
const dummyPassword = "adminpanel-timing-equalizer"

// UserFinder is the read side of the user directory used during login.
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (models.User, error)
	GetByID(ctx context.Context, id int64) (models.User, error)
	ActiveRoles(ctx context.Context, userID int64) ([]models.RoleAssignment, error)
}

type AuthConfig struct {
	// ActivityThreshold debounces last-activity writes.
	ActivityThreshold time.Duration
	// DefaultPolicyID applies to users without an assigned session policy.
	DefaultPolicyID int64
}

type AuthDeps struct {
	Users    UserFinder
	Sessions session.Store
	Policies session.PolicyFinder
	RBAC     *rbac.Resolver
	Codec    *security.TokenCodec
	Hasher   security.PasswordHasher
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Config   AuthConfig
	Now      func() time.Time
}

// AuthService drives the session lifecycle: login, refresh, logout and the
// per-request access check.
type AuthService struct {
	users    UserFinder
	sessions session.Store
	policies session.PolicyFinder
	rbac     *rbac.Resolver
	codec    *security.TokenCodec
	hasher   security.PasswordHasher
	metrics  *metrics.Metrics
	log      zerolog.Logger
	cfg      AuthConfig
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(deps AuthDeps) *AuthService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		users:    deps.Users,
		sessions: deps.Sessions,
		policies: deps.Policies,
		rbac:     deps.RBAC,
		codec:    deps.Codec,
		hasher:   deps.Hasher,
		metrics:  deps.Metrics,
		log:      deps.Logger,
		cfg:      deps.Config,
		now:      now,
	}
}

type LoginInput struct {
	Username string
	Password string
	Client   models.ClientInfo
}

type ActiveRole struct {
	RoleID      int64  `json:"rol_id"`
	Description string `json:"descripcion"`
}

type UserProfile struct {
	UserID     int64      `json:"usuario_id"`
	Username   string     `json:"usuario"`
	PersonID   *string    `json:"individuo,omitempty"`
	Enabled    bool       `json:"usuario_habilitado"`
	ActiveRole ActiveRole `json:"rol_activo"`
}

// Profile is the identity and navigation state returned by login, refresh
// and the current-user endpoint.
type Profile struct {
	User          UserProfile         `json:"user"`
	RoleID        int64               `json:"roleId"`
	DefaultModule *models.MenuModule  `json:"defaultModule"`
	Menu          []models.MenuModule `json:"menu"`
}

type AuthResult struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
	Profile          Profile
}

// Principal is what an authenticated request is admitted with. Permissions
// are read from the grant tables on every request, not from the token.
type Principal struct {
	UserID      int64
	RoleID      int64
	SessionID   string
	Permissions []string
}

func (p Principal) Can(module, permission string) bool {
	return rbac.Contains(p.Permissions, module, permission)
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	result, err := s.login(ctx, input)
	s.metrics.Login(resultLabel(err))
	return result, err
}

func (s *AuthService) login(ctx context.Context, input LoginInput) (AuthResult, error) {
	username := strings.TrimSpace(input.Username)

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.burnVerification(input.Password)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("find user: %w", err)
	}

	ok, err := s.hasher.Verify(user.PasswordHash, input.Password)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", user.ID).Msg("stored password digest unreadable")
		return AuthResult{}, ErrInvalidCredentials
	}
	if !ok {
		return AuthResult{}, ErrInvalidCredentials
	}
	if !user.Enabled {
		return AuthResult{}, ErrAccountDisabled
	}

	role, err := s.activeRole(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrAmbiguousRole) {
			s.log.Warn().Int64("user_id", user.ID).Msg("user has more than one active role")
		}
		return AuthResult{}, err
	}

	policyID := s.cfg.DefaultPolicyID
	if user.SessionPolicyID != nil {
		policyID = *user.SessionPolicyID
	}
	policy, err := s.policies.FindPolicy(ctx, policyID)
	if err != nil {
		if errors.Is(err, session.ErrPolicyNotFound) {
			s.log.Error().Int64("policy_id", policyID).Int64("user_id", user.ID).Msg("session policy missing")
			return AuthResult{}, ErrPolicyNotFound
		}
		return AuthResult{}, fmt.Errorf("find policy: %w", err)
	}

	now := s.now()
	if !user.AllowMultipleSessions {
		n, err := s.sessions.RevokeAllForUser(ctx, user.ID, now)
		if err != nil {
			return AuthResult{}, fmt.Errorf("revoke previous sessions: %w", err)
		}
		s.metrics.Revoked("single_session", n)
	}

	jti, err := security.GenerateTokenIdentifier()
	if err != nil {
		return AuthResult{}, err
	}
	sess := models.Session{
		ID:                ids.New(),
		UserID:            user.ID,
		RoleID:            role.RoleID,
		PolicyID:          policy.ID,
		RefreshJTI:        jti,
		CreatedAt:         now,
		LastActivityAt:    now,
		ExpiresAtAbsolute: session.AbsoluteExpiry(policy, now),
		IPAddress:         input.Client.IPAddress,
		UserAgent:         input.Client.UserAgent,
		DeviceInfo:        input.Client.DeviceInfo,
	}

	refreshToken, err := s.codec.IssueRefreshToken(security.RefreshClaims{
		UserID:    user.ID,
		SessionID: sess.ID,
		RoleID:    role.RoleID,
		JTI:       jti,
	})
	if err != nil {
		return AuthResult{}, err
	}
	sess.RefreshDigest = security.DigestRefreshToken(refreshToken)

	if err := s.sessions.Create(ctx, sess); err != nil {
		return AuthResult{}, fmt.Errorf("create session: %w", err)
	}

	result, err := s.issue(ctx, user, role, sess.ID, refreshToken)
	if err != nil {
		return AuthResult{}, err
	}

	s.log.Info().
		Int64("user_id", user.ID).
		Str("session_id", sess.ID).
		Int64("role_id", role.RoleID).
		Str("ip", input.Client.IPAddress).
		Msg("login succeeded")
	return result, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	result, err := s.refresh(ctx, refreshToken)
	s.metrics.Refresh(resultLabel(err))
	return result, err
}

func (s *AuthService) refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	payload, err := s.codec.VerifyRefreshToken(refreshToken)
	if err != nil {
		s.log.Debug().Err(err).Msg("refresh token rejected")
		return AuthResult{}, ErrInvalidRefreshToken
	}

	sess, err := s.sessions.FindActiveByRefreshID(ctx, payload.JTI)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return AuthResult{}, ErrInvalidSession
		}
		return AuthResult{}, fmt.Errorf("find session: %w", err)
	}
	if sess.ID != payload.SessionID || sess.UserID != payload.UserID ||
		!security.RefreshDigestMatches(refreshToken, sess.RefreshDigest) {
		s.log.Warn().Str("session_id", sess.ID).Msg("refresh token does not match its session")
		return AuthResult{}, ErrInvalidRefreshToken
	}

	now := s.now()
	if err := s.checkLifetime(ctx, sess, now); err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.revoke(ctx, sess.ID, now, "user")
			return AuthResult{}, ErrInvalidSession
		}
		return AuthResult{}, fmt.Errorf("load user: %w", err)
	}
	if !user.Enabled {
		s.revoke(ctx, sess.ID, now, "disabled")
		return AuthResult{}, ErrAccountDisabled
	}
	role, err := s.activeRole(ctx, user.ID)
	if err != nil {
		return AuthResult{}, err
	}

	newJTI, err := security.GenerateTokenIdentifier()
	if err != nil {
		return AuthResult{}, err
	}
	newRefresh, err := s.codec.IssueRefreshToken(security.RefreshClaims{
		UserID:    user.ID,
		SessionID: sess.ID,
		RoleID:    role.RoleID,
		JTI:       newJTI,
	})
	if err != nil {
		return AuthResult{}, err
	}

	err = s.sessions.RotateRefreshToken(ctx, sess.ID, payload.JTI, newJTI, security.DigestRefreshToken(newRefresh), now)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrConflict) {
			s.log.Warn().Str("session_id", sess.ID).Msg("refresh rotation lost to a concurrent request")
			return AuthResult{}, ErrInvalidRefreshToken
		}
		return AuthResult{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	result, err := s.issue(ctx, user, role, sess.ID, newRefresh)
	if err != nil {
		return AuthResult{}, err
	}
	s.log.Debug().Int64("user_id", user.ID).Str("session_id", sess.ID).Msg("refresh token rotated")
	return result, nil
}

// Logout revokes the session. Revoking twice is not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Revoke(ctx, sessionID, s.now()); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.metrics.Revoked("logout", 1)
	s.log.Info().Str("session_id", sessionID).Msg("logout")
	return nil
}

// Authenticate admits a request carrying the given access token.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	principal, err := s.authenticate(ctx, accessToken)
	s.metrics.Authentication(resultLabel(err))
	return principal, err
}

func (s *AuthService) authenticate(ctx context.Context, accessToken string) (Principal, error) {
	payload, err := s.codec.VerifyAccessToken(accessToken)
	if err != nil {
		var tokenErr *security.TokenError
		if errors.As(err, &tokenErr) {
			s.log.Debug().Str("kind", string(tokenErr.Kind)).Msg("access token rejected")
		}
		return Principal{}, ErrInvalidToken
	}

	sess, err := s.sessions.FindByID(ctx, payload.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Principal{}, ErrInvalidSession
		}
		return Principal{}, fmt.Errorf("find session: %w", err)
	}
	if sess.Revoked || sess.UserID != payload.UserID {
		return Principal{}, ErrInvalidSession
	}

	now := s.now()
	if err := s.checkLifetime(ctx, sess, now); err != nil {
		return Principal{}, err
	}

	if session.ShouldRecordActivity(sess, now, s.cfg.ActivityThreshold) {
		if err := s.sessions.TouchActivity(ctx, sess.ID, now); err != nil {
			s.log.Warn().Err(err).Str("session_id", sess.ID).Msg("record session activity failed")
		}
	}

	permissions, err := s.rbac.Permissions(ctx, sess.UserID)
	if err != nil {
		return Principal{}, err
	}

	return Principal{
		UserID:      sess.UserID,
		RoleID:      payload.RoleID,
		SessionID:   sess.ID,
		Permissions: permissions,
	}, nil
}

// Profile resolves the current-user view without touching tokens.
func (s *AuthService) Profile(ctx context.Context, userID int64) (Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return Profile{}, ErrUserNotFound
		}
		return Profile{}, fmt.Errorf("load user: %w", err)
	}
	role, err := s.activeRole(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	snapshot, err := s.rbac.Snapshot(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return buildProfile(user, role, snapshot), nil
}

// Sessions lists the live sessions of a user, most recently active first.
func (s *AuthService) Sessions(ctx context.Context, userID int64) ([]models.Session, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// RevokeSession ends one of the user's own sessions.
func (s *AuthService) RevokeSession(ctx context.Context, userID int64, sessionID string) error {
	if !ids.Valid(sessionID) {
		return ErrSessionNotFound
	}
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("find session: %w", err)
	}
	if sess.UserID != userID {
		return ErrSessionNotFound
	}
	if sess.Revoked {
		return nil
	}
	s.revoke(ctx, sess.ID, s.now(), "user")
	return nil
}

// checkLifetime revokes and rejects a session past its absolute deadline or
// idle for longer than its policy allows.
func (s *AuthService) checkLifetime(ctx context.Context, sess models.Session, now time.Time) error {
	if session.IsAbsoluteExpired(sess, now) {
		s.revoke(ctx, sess.ID, now, "expired")
		return ErrSessionExpired
	}

	policy, err := s.policies.FindPolicy(ctx, sess.PolicyID)
	if err != nil {
		if !errors.Is(err, session.ErrPolicyNotFound) {
			return fmt.Errorf("find policy: %w", err)
		}
		// without its policy the idle limit is unknown; fail closed
		s.log.Error().Int64("policy_id", sess.PolicyID).Str("session_id", sess.ID).Msg("session policy missing")
		s.revoke(ctx, sess.ID, now, "inactive")
		return ErrSessionInactive
	}
	if session.IsInactive(sess, policy, now) {
		s.revoke(ctx, sess.ID, now, "inactive")
		return ErrSessionInactive
	}
	return nil
}

func (s *AuthService) revoke(ctx context.Context, sessionID string, now time.Time, reason string) {
	if err := s.sessions.Revoke(ctx, sessionID, now); err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID).Str("reason", reason).Msg("revoke session failed")
		return
	}
	s.metrics.Revoked(reason, 1)
	s.log.Info().Str("session_id", sessionID).Str("reason", reason).Msg("session revoked")
}

func (s *AuthService) activeRole(ctx context.Context, userID int64) (models.RoleAssignment, error) {
	roles, err := s.users.ActiveRoles(ctx, userID)
	if err != nil {
		return models.RoleAssignment{}, fmt.Errorf("active roles: %w", err)
	}
	switch len(roles) {
	case 0:
		return models.RoleAssignment{}, ErrNoActiveRole
	case 1:
		return roles[0], nil
	default:
		return models.RoleAssignment{}, ErrAmbiguousRole
	}
}

// issue resolves a fresh RBAC snapshot and mints the access token for it.
func (s *AuthService) issue(ctx context.Context, user models.User, role models.RoleAssignment, sessionID, refreshToken string) (AuthResult, error) {
	snapshot, err := s.rbac.Snapshot(ctx, user.ID)
	if err != nil {
		return AuthResult{}, err
	}

	accessToken, err := s.codec.IssueAccessToken(security.AccessClaims{
		UserID:      user.ID,
		SessionID:   sessionID,
		RoleID:      role.RoleID,
		Permissions: snapshot.Permissions,
	})
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: s.now().Add(s.codec.RefreshTTL()),
		SessionID:        sessionID,
		Profile:          buildProfile(user, role, snapshot),
	}, nil
}

func (s *AuthService) burnVerification(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.log.Error().Err(err).Msg("build dummy password digest")
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(s.dummyHash, password)
	}
}

func buildProfile(user models.User, role models.RoleAssignment, snapshot rbac.Snapshot) Profile {
	return Profile{
		User: UserProfile{
			UserID:   user.ID,
			Username: user.Username,
			PersonID: user.PersonID,
			Enabled:  user.Enabled,
			ActiveRole: ActiveRole{
				RoleID:      role.RoleID,
				Description: role.Role.Description,
			},
		},
		RoleID:        role.RoleID,
		DefaultModule: snapshot.Landing(),
		Menu:          snapshot.Menu,
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if code := CodeOf(err); code != "" {
		return code
	}
	return "error"
}
