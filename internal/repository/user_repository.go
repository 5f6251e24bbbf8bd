package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"adminpanel/api/internal/models"
)

const pgForeignKeyViolation = "23503"

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrRoleNotFound  = errors.New("role not found")
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, username, password_hash, person_id::text, enabled, session_policy_id, allow_multiple_sessions, created_at`

// Create inserts the user and its role assignments in one transaction. Only
// the active role assignment starts enabled.
func (r *UserRepository) Create(ctx context.Context, in models.NewUser) (models.User, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.User{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertUser = `
		INSERT INTO users (username, password_hash, person_id, enabled, session_policy_id, allow_multiple_sessions)
		VALUES ($1, $2, $3::uuid, $4, $5, $6)
		RETURNING ` + userColumns

	user, err := scanUser(tx.QueryRow(ctx, insertUser,
		in.Username,
		in.PasswordHash,
		in.PersonID,
		in.Enabled,
		in.SessionPolicyID,
		in.AllowMultipleSessions,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return models.User{}, ErrUsernameTaken
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}

	const insertRole = `INSERT INTO user_roles (user_id, role_id, enabled) VALUES ($1, $2, $3)`
	for _, roleID := range in.Roles {
		if _, err := tx.Exec(ctx, insertRole, user.ID, roleID, roleID == in.ActiveRole); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
				return models.User{}, fmt.Errorf("role %d: %w", roleID, ErrRoleNotFound)
			}
			return models.User{}, fmt.Errorf("assign role: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return models.User{}, fmt.Errorf("commit: %w", err)
	}
	return user, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, username))
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}

// ActiveRoles returns the enabled assignments of the user on enabled roles.
func (r *UserRepository) ActiveRoles(ctx context.Context, userID int64) ([]models.RoleAssignment, error) {
	const query = `
		SELECT ur.role_id, r.description, r.enabled, ur.enabled
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1 AND ur.enabled AND r.enabled
		ORDER BY ur.role_id
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("active roles: %w", err)
	}
	defer rows.Close()

	assignments := make([]models.RoleAssignment, 0, 1)
	for rows.Next() {
		var a models.RoleAssignment
		if err := rows.Scan(&a.RoleID, &a.Role.Description, &a.Role.Enabled, &a.Enabled); err != nil {
			return nil, err
		}
		a.Role.ID = a.RoleID
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	const query = `UPDATE users SET enabled = $2 WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, enabled)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) scanOne(row pgx.Row) (models.User, error) {
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.PersonID,
		&u.Enabled,
		&u.SessionPolicyID,
		&u.AllowMultipleSessions,
		&u.CreatedAt,
	)
	return u, err
}
