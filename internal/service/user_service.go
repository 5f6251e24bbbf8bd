package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"adminpanel/api/internal/metrics"
	"adminpanel/api/internal/models"
	"adminpanel/api/internal/repository"
	"adminpanel/api/internal/security"
	"adminpanel/api/internal/session"
)

const maxRolesPerUser = 2

// UserDirectory is the write side of the user directory.
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (models.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, in models.NewUser) (models.User, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) error
}

type UserService struct {
	users    UserDirectory
	sessions session.Store
	hasher   security.PasswordHasher
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
}

func NewUserService(
	users UserDirectory,
	sessions session.Store,
	hasher security.PasswordHasher,
	m *metrics.Metrics,
	log zerolog.Logger,
) *UserService {
	return &UserService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

type CreateUserInput struct {
	FirstName             string
	LastName              string
	Document              string
	Password              string
	PersonID              *string
	Roles                 []int64
	ActiveRole            int64
	SessionPolicyID       *int64
	AllowMultipleSessions bool
	Enabled               bool
}

// CheckUsername reports whether the username is still free.
func (s *UserService) CheckUsername(ctx context.Context, username string) (bool, error) {
	exists, err := s.users.UsernameExists(ctx, username)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (models.User, error) {
	username, err := BuildUsername(in.FirstName, in.LastName, in.Document)
	if err != nil {
		return models.User{}, err
	}

	roles := dedupeRoles(in.Roles)
	if len(roles) == 0 {
		return models.User{}, ErrNoRolesAssigned
	}
	if len(roles) > maxRolesPerUser {
		return models.User{}, ErrTooManyRoles
	}
	if !containsRole(roles, in.ActiveRole) {
		return models.User{}, ErrActiveRoleNotAssigned
	}

	exists, err := s.users.UsernameExists(ctx, username)
	if err != nil {
		return models.User{}, err
	}
	if exists {
		return models.User{}, ErrUsernameTaken
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.users.Create(ctx, models.NewUser{
		Username:              username,
		PasswordHash:          digest,
		PersonID:              in.PersonID,
		SessionPolicyID:       in.SessionPolicyID,
		AllowMultipleSessions: in.AllowMultipleSessions,
		Enabled:               in.Enabled,
		Roles:                 roles,
		ActiveRole:            in.ActiveRole,
	})
	switch {
	case errors.Is(err, repository.ErrUsernameTaken):
		return models.User{}, ErrUsernameTaken
	case errors.Is(err, repository.ErrRoleNotFound):
		return models.User{}, ErrUnknownRole
	case err != nil:
		return models.User{}, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("user created")
	return user, nil
}

// SetEnabled toggles the account; disabling also ends every live session.
func (s *UserService) SetEnabled(ctx context.Context, userID int64, enabled bool) error {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if err := s.users.SetEnabled(ctx, userID, enabled); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if !enabled {
		n, err := s.sessions.RevokeAllForUser(ctx, userID, s.now())
		if err != nil {
			return fmt.Errorf("revoke sessions of disabled user: %w", err)
		}
		s.metrics.Revoked("disabled", n)
		s.log.Info().Int64("user_id", userID).Int64("sessions", n).Msg("user disabled")
	}
	return nil
}

func (s *UserService) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.users.List(ctx, limit, offset)
}

func dedupeRoles(roles []int64) []int64 {
	seen := make(map[int64]struct{}, len(roles))
	out := make([]int64, 0, len(roles))
	for _, r := range roles {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func containsRole(roles []int64, id int64) bool {
	for _, r := range roles {
		if r == id {
			return true
		}
	}
	return false
}
