// Package session defines the session persistence contract and the timing
// rules applied to every session.
package session

import (
	"context"
	"errors"
	"time"

	"adminpanel/api/internal/models"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrConflict       = errors.New("session already exists")
	ErrPolicyNotFound = errors.New("session policy not found")
)

// Store persists sessions. Every mutating method is a single atomic update
// scoped to one session id (or one user id for RevokeAllForUser).
type Store interface {
	// Create inserts a new session and returns ErrConflict when the id exists.
	Create(ctx context.Context, s models.Session) error
	FindByID(ctx context.Context, id string) (models.Session, error)
	// FindActiveByRefreshID only ever returns non-revoked sessions.
	FindActiveByRefreshID(ctx context.Context, jti string) (models.Session, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Session, error)
	TouchActivity(ctx context.Context, id string, now time.Time) error
	// RotateRefreshToken replaces jti and digest together, but only while the
	// session is not revoked and still carries currentJTI. A lost race returns
	// ErrNotFound.
	RotateRefreshToken(ctx context.Context, id, currentJTI, newJTI, newDigest string, now time.Time) error
	// Revoke is idempotent; revoking an unknown or revoked session is not an error.
	Revoke(ctx context.Context, id string, now time.Time) error
	RevokeAllForUser(ctx context.Context, userID int64, now time.Time) (int64, error)
	// SweepExpired revokes live sessions whose absolute expiry is before now.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type PolicyFinder interface {
	FindPolicy(ctx context.Context, id int64) (models.SessionPolicy, error)
}
