package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tahamediouni1/RebiiProject/internal/domain"
	"github.com/tahamediouni1/RebiiProject/pkg/database"
)

const userColumns = `id, username, email, password_hash, first_name, last_name, birthdate,
		phone_number, is_admin, accept_terms, profile_picture, email_confirmed, email_token,
		email_confirmation_attempts, two_factor_enabled, two_factor_secret, two_factor_temp_secret,
		password_reset_token, password_reset_expires, failed_login_attempts, lock_until,
		created_at, updated_at`

// userRepository implements UserRepository on Postgres
type userRepository struct {
	db *database.Postgres
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.Postgres) UserRepository {
	return &userRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	var (
		phoneNumber, profilePicture, emailToken         sql.NullString
		twoFactorSecret, twoFactorTempSecret, resetTok  sql.NullString
		passwordResetExpires, lockUntil                 sql.NullTime
	)

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Birthdate,
		&phoneNumber,
		&user.IsAdmin,
		&user.AcceptTerms,
		&profilePicture,
		&user.EmailConfirmed,
		&emailToken,
		&user.EmailConfirmationAttempts,
		&user.TwoFactorEnabled,
		&twoFactorSecret,
		&twoFactorTempSecret,
		&resetTok,
		&passwordResetExpires,
		&user.FailedLoginAttempts,
		&lockUntil,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	setString := func(dst **string, src sql.NullString) {
		if src.Valid {
			v := src.String
			*dst = &v
		}
	}
	setString(&user.PhoneNumber, phoneNumber)
	setString(&user.ProfilePicture, profilePicture)
	setString(&user.EmailToken, emailToken)
	setString(&user.TwoFactorSecret, twoFactorSecret)
	setString(&user.TwoFactorTempSecret, twoFactorTempSecret)
	setString(&user.PasswordResetToken, resetTok)
	if passwordResetExpires.Valid {
		t := passwordResetExpires.Time
		user.PasswordResetExpires = &t
	}
	if lockUntil.Valid {
		t := lockUntil.Time
		user.LockUntil = &t
	}

	return user, nil
}

func (r *userRepository) getOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	user, err := scanUser(r.db.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Create creates a new user record
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, first_name, last_name, birthdate,
			phone_number, is_admin, accept_terms, profile_picture, email_confirmed, email_token,
			email_confirmation_attempts, two_factor_enabled, two_factor_secret, two_factor_temp_secret,
			password_reset_token, password_reset_expires, failed_login_attempts, lock_until,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`

	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	_, err := r.db.DB.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Birthdate,
		user.PhoneNumber,
		user.IsAdmin,
		user.AcceptTerms,
		user.ProfilePicture,
		user.EmailConfirmed,
		user.EmailToken,
		user.EmailConfirmationAttempts,
		user.TwoFactorEnabled,
		user.TwoFactorSecret,
		user.TwoFactorTempSecret,
		user.PasswordResetToken,
		user.PasswordResetExpires,
		user.FailedLoginAttempts,
		user.LockUntil,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by id
func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail retrieves a user by email
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// GetByUsername retrieves a user by username
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// GetByEmailOrUsername retrieves a user matching either identifier
func (r *userRepository) GetByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error) {
	return r.getOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 OR username = $2 LIMIT 1`,
		email, username)
}

// GetByEmailToken retrieves a user by its pending email confirmation token
func (r *userRepository) GetByEmailToken(ctx context.Context, token string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email_token = $1`, token)
}

// GetByResetToken retrieves a user by an unexpired password reset token
func (r *userRepository) GetByResetToken(ctx context.Context, token string, now time.Time) (*domain.User, error) {
	return r.getOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE password_reset_token = $1 AND password_reset_expires > $2`,
		token, now)
}

// Update persists every mutable field of the user record
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET username = $2, email = $3, password_hash = $4, first_name = $5, last_name = $6,
			birthdate = $7, phone_number = $8, is_admin = $9, profile_picture = $10,
			email_confirmed = $11, email_token = $12, email_confirmation_attempts = $13,
			two_factor_enabled = $14, two_factor_secret = $15, two_factor_temp_secret = $16,
			password_reset_token = $17, password_reset_expires = $18,
			failed_login_attempts = $19, lock_until = $20, updated_at = $21
		WHERE id = $1
	`

	result, err := r.db.DB.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Birthdate,
		user.PhoneNumber,
		user.IsAdmin,
		user.ProfilePicture,
		user.EmailConfirmed,
		user.EmailToken,
		user.EmailConfirmationAttempts,
		user.TwoFactorEnabled,
		user.TwoFactorSecret,
		user.TwoFactorTempSecret,
		user.PasswordResetToken,
		user.PasswordResetExpires,
		user.FailedLoginAttempts,
		user.LockUntil,
		time.Now(),
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a user record; refresh tokens cascade
func (r *userRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// List returns every user record, newest first
func (r *userRepository) List(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.DB.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}
