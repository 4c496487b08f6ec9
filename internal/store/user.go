package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/trailtours/apiserver/types"
)

const userColumns = `id, name, email, role, password_hash, password_changed_at,
		password_reset_token_hash, password_reset_expires, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.PasswordHash,
		&user.PasswordChangedAt,
		&user.PasswordResetTokenHash,
		&user.PasswordResetExpires,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (name, email, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Name,
		user.Email,
		user.Role,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, translateUniqueViolation(err)
	}
	return user, nil
}

// UpdatePassword sets a new password hash and stamps password_changed_at.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int, passwordHash string, changedAt time.Time) error {
	const query = `
		UPDATE users
		SET password_hash = $1,
			password_changed_at = $2,
			updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, passwordHash, changedAt, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// SetResetToken stores the reset-token hash and its expiry as one update, so
// the pair is either fully present or fully absent.
func (r *UserRepository) SetResetToken(ctx context.Context, id int, tokenHash string, expires time.Time) error {
	const query = `
		UPDATE users
		SET password_reset_token_hash = $1,
			password_reset_expires = $2,
			updated_at = NOW()
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, tokenHash, expires, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// ClearResetToken removes any pending reset token. Used as the compensating
// update when delivery of the raw token fails.
func (r *UserRepository) ClearResetToken(ctx context.Context, id int) error {
	const query = `
		UPDATE users
		SET password_reset_token_hash = NULL,
			password_reset_expires = NULL,
			updated_at = NOW()
		WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// ConsumeResetToken atomically redeems an outstanding reset token: in a
// single conditional update it matches the stored hash against an unexpired
// expiry, sets the new password hash, stamps password_changed_at, and clears
// both reset fields. ErrNotFound means the token is wrong, expired, or was
// already consumed; callers cannot and must not tell those apart.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (types.User, error) {
	const query = `
		UPDATE users
		SET password_hash = $1,
			password_changed_at = $2,
			password_reset_token_hash = NULL,
			password_reset_expires = NULL,
			updated_at = $2
		WHERE password_reset_token_hash = $3
			AND password_reset_expires > $4
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, passwordHash, now, tokenHash, now))
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
