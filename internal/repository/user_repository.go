package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/estate-auth-api/internal/models"
)

const uniqueViolation = "23505"

var (
	// ErrDuplicateEmail is returned when the email unique constraint rejects an insert.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrDuplicateUsername is returned when the username unique constraint rejects an insert.
	ErrDuplicateUsername = errors.New("username already registered")
	// ErrRefreshTokenConflict means the stored refresh token changed since it was read.
	ErrRefreshTokenConflict = errors.New("refresh token changed concurrently")
)

const userColumns = `id, email, username, first_name, last_name, phone_number, password_hash, role, enabled, locked, refresh_token, refresh_token_expiry, created_by, created_at, modified_by, modified_at`

// UserRepository is the PostgreSQL credential store.
type UserRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByUsername returns a user by username.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by username: %w", err)
	}
	return &user, nil
}

// Create inserts a new user, assigning id and audit timestamps.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := r.now().UTC()
	user.CreatedAt = now
	user.ModifiedAt = now
	if user.ModifiedBy == "" {
		user.ModifiedBy = user.CreatedBy
	}

	const query = `INSERT INTO users (` + userColumns + `) VALUES (:id, :email, :username, :first_name, :last_name, :phone_number, :password_hash, :role, :enabled, :locked, :refresh_token, :refresh_token_expiry, :created_by, :created_at, :modified_by, :modified_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		if dup := duplicateError(err); dup != nil {
			return dup
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateRefreshToken replaces the stored refresh token only if it still equals expected.
// A nil token clears it. ErrRefreshTokenConflict is returned when another writer got there first.
func (r *UserRepository) UpdateRefreshToken(ctx context.Context, id string, expected, token *string, expiry *time.Time, modifiedBy string) error {
	const query = `UPDATE users SET refresh_token = $3, refresh_token_expiry = $4, modified_by = $5, modified_at = $6 WHERE id = $1 AND refresh_token IS NOT DISTINCT FROM $2`
	res, err := r.db.ExecContext(ctx, query, id, expected, token, expiry, modifiedBy, r.now().UTC())
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update refresh token rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRefreshTokenConflict
	}
	return nil
}

// UpdatePassword stores a new hash and revokes the refresh token in the same statement.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash, modifiedBy string) error {
	const query = `UPDATE users SET password_hash = $2, refresh_token = NULL, refresh_token_expiry = NULL, modified_by = $3, modified_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, passwordHash, modifiedBy, r.now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireRow(res, "update password")
}

// UpdateStatus sets the enabled/locked flags. Disabling or locking also revokes the refresh token.
func (r *UserRepository) UpdateStatus(ctx context.Context, id string, enabled, locked bool, modifiedBy string) error {
	const query = `UPDATE users SET enabled = $2, locked = $3, refresh_token = CASE WHEN $2 AND NOT $3 THEN refresh_token ELSE NULL END, refresh_token_expiry = CASE WHEN $2 AND NOT $3 THEN refresh_token_expiry ELSE NULL END, modified_by = $4, modified_at = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, enabled, locked, modifiedBy, r.now().UTC())
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return requireRow(res, "update status")
}

// Delete removes a user record.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireRow(res, "delete user")
}

// Ping verifies database connectivity for readiness checks.
func (r *UserRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func requireRow(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func duplicateError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return nil
	}
	switch pqErr.Constraint {
	case "users_username_key":
		return ErrDuplicateUsername
	default:
		return ErrDuplicateEmail
	}
}
