package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"adminpanel/api/internal/models"
	"adminpanel/api/internal/session"
)

const pgUniqueViolation = "23505"

// DBTX is the part of *pgxpool.Pool the session repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SessionRepository is the postgres session.Store. It also serves session
// policies since every session row references one.
type SessionRepository struct {
	pool DBTX
}

var (
	_ session.Store        = (*SessionRepository)(nil)
	_ session.PolicyFinder = (*SessionRepository)(nil)
)

func NewSessionRepository(pool DBTX) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `
	id, user_id, role_id, policy_id, refresh_jti, refresh_token_hash,
	created_at, last_activity, expires_at_absolute, revoked, revoked_at,
	COALESCE(ip, ''), COALESCE(user_agent, ''), device_info`

func (r *SessionRepository) Create(ctx context.Context, s models.Session) error {
	const query = `
		INSERT INTO sessions (
			id, user_id, role_id, policy_id, refresh_jti, refresh_token_hash,
			created_at, last_activity, expires_at_absolute, revoked, ip, user_agent, device_info
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, NULLIF($10, ''), NULLIF($11, ''), $12
		)
	`

	var deviceInfo []byte
	if len(s.DeviceInfo) > 0 {
		deviceInfo = s.DeviceInfo
	}

	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.UserID,
		s.RoleID,
		s.PolicyID,
		s.RefreshJTI,
		s.RefreshDigest,
		s.CreatedAt,
		s.LastActivityAt,
		s.ExpiresAtAbsolute,
		s.IPAddress,
		s.UserAgent,
		deviceInfo,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return session.ErrConflict
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *SessionRepository) FindActiveByRefreshID(ctx context.Context, jti string) (models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE refresh_jti = $1 AND NOT revoked`
	return r.scanOne(r.pool.QueryRow(ctx, query, jti))
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID int64) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND NOT revoked
		ORDER BY last_activity DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) TouchActivity(ctx context.Context, id string, now time.Time) error {
	const query = `
		UPDATE sessions
		SET last_activity = GREATEST(last_activity, $2)
		WHERE id = $1 AND NOT revoked
	`
	cmd, err := r.pool.Exec(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (r *SessionRepository) RotateRefreshToken(ctx context.Context, id, currentJTI, newJTI, newDigest string, now time.Time) error {
	const query = `
		UPDATE sessions
		SET refresh_jti = $3,
		    refresh_token_hash = $4,
		    last_activity = GREATEST(last_activity, $5)
		WHERE id = $1 AND refresh_jti = $2 AND NOT revoked
	`
	cmd, err := r.pool.Exec(ctx, query, id, currentJTI, newJTI, newDigest, now)
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (r *SessionRepository) Revoke(ctx context.Context, id string, now time.Time) error {
	const query = `UPDATE sessions SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND NOT revoked`
	if _, err := r.pool.Exec(ctx, query, id, now); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	const query = `UPDATE sessions SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND NOT revoked`
	cmd, err := r.pool.Exec(ctx, query, userID, now)
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE sessions SET revoked = TRUE, revoked_at = $1
		WHERE NOT revoked AND expires_at_absolute < $1
	`
	cmd, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) FindPolicy(ctx context.Context, id int64) (models.SessionPolicy, error) {
	const query = `
		SELECT id, inactivity_timeout_minutes, absolute_timeout_minutes, refresh_hint_minutes
		FROM session_policies WHERE id = $1
	`
	var p models.SessionPolicy
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.InactivityTimeoutMinutes,
		&p.AbsoluteTimeoutMinutes,
		&p.RefreshHintMinutes,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.SessionPolicy{}, session.ErrPolicyNotFound
		}
		return models.SessionPolicy{}, fmt.Errorf("find policy: %w", err)
	}
	return p, nil
}

func (r *SessionRepository) scanOne(row pgx.Row) (models.Session, error) {
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, session.ErrNotFound
		}
		return models.Session{}, err
	}
	return s, nil
}

func scanSession(row pgx.Row) (models.Session, error) {
	var s models.Session
	var deviceInfo []byte
	if err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.RoleID,
		&s.PolicyID,
		&s.RefreshJTI,
		&s.RefreshDigest,
		&s.CreatedAt,
		&s.LastActivityAt,
		&s.ExpiresAtAbsolute,
		&s.Revoked,
		&s.RevokedAt,
		&s.IPAddress,
		&s.UserAgent,
		&deviceInfo,
	); err != nil {
		return models.Session{}, err
	}
	if len(deviceInfo) > 0 {
		s.DeviceInfo = deviceInfo
	}
	return s, nil
}
