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

// tokenRepository implements TokenRepository on Postgres
type tokenRepository struct {
	db *database.Postgres
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *database.Postgres) TokenRepository {
	return &tokenRepository{db: db}
}

// trimRing deletes the oldest entries beyond the ring cap inside tx.
func trimRing(ctx context.Context, tx *sql.Tx, userID string) error {
	query := `
		DELETE FROM refresh_tokens
		WHERE user_id = $1
		  AND id NOT IN (
			SELECT id FROM refresh_tokens
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		  )
	`
	if _, err := tx.ExecContext(ctx, query, userID, domain.MaxRefreshTokens); err != nil {
		return fmt.Errorf("failed to trim token ring: %w", err)
	}
	return nil
}

func insertToken(ctx context.Context, tx *sql.Tx, userID, tokenHash string, expiresAt time.Time) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.ExecContext(ctx, query, uuid.New().String(), userID, tokenHash, expiresAt, time.Now())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return ErrDuplicateToken
		}
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

func (r *tokenRepository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Append adds a refresh token to the user's ring, evicting oldest beyond cap
func (r *tokenRepository) Append(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertToken(ctx, tx, userID, tokenHash, expiresAt); err != nil {
			return err
		}
		return trimRing(ctx, tx, userID)
	})
}

// Rotate drops expired entries and the just-used token, then appends the
// replacement, all atomically
func (r *tokenRepository) Rotate(ctx context.Context, userID, usedHash, newHash string, expiresAt time.Time) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM refresh_tokens WHERE user_id = $1 AND (expires_at < $2 OR token_hash = $3)`,
			userID, time.Now(), usedHash)
		if err != nil {
			return fmt.Errorf("failed to evict rotated tokens: %w", err)
		}

		if err := insertToken(ctx, tx, userID, newHash, expiresAt); err != nil {
			return err
		}
		return trimRing(ctx, tx, userID)
	})
}

// Exists reports whether an unexpired entry with this hash is in the ring
func (r *tokenRepository) Exists(ctx context.Context, userID, tokenHash string, now time.Time) (bool, error) {
	var exists bool
	err := r.db.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM refresh_tokens WHERE user_id = $1 AND token_hash = $2 AND expires_at > $3)`,
		userID, tokenHash, now).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check token existence: %w", err)
	}
	return exists, nil
}

// DeleteByHash removes one entry by exact match. Deleting a token that is
// not present is not an error: logout is idempotent.
func (r *tokenRepository) DeleteByHash(ctx context.Context, userID, tokenHash string) error {
	_, err := r.db.DB.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1 AND token_hash = $2`,
		userID, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// CountByUserID returns the ring size for a user
func (r *tokenRepository) CountByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM refresh_tokens WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}
	return count, nil
}

// DeleteExpired removes all expired entries across users
func (r *tokenRepository) DeleteExpired(ctx context.Context) error {
	_, err := r.db.DB.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1`, time.Now())
	if err != nil {
		return fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return nil
}
