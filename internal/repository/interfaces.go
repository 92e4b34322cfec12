package repository

import (
	"context"
	"time"

	"github.com/tahamediouni1/RebiiProject/internal/domain"
)

// UserRepository defines persistence operations on user records
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// GetByEmailOrUsername resolves the registration duplicate check in a
	// single compound lookup.
	GetByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error)
	GetByEmailToken(ctx context.Context, token string) (*domain.User, error)
	// GetByResetToken only matches records whose reset token has not expired.
	GetByResetToken(ctx context.Context, token string, now time.Time) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*domain.User, error)
}

// TokenRepository manages the per-user refresh token ring. Every mutation
// enforces the ring cap at the storage layer so concurrent logins cannot
// grow a user's list beyond domain.MaxRefreshTokens.
type TokenRepository interface {
	// Append adds a token to the ring, evicting the oldest entries beyond
	// the cap.
	Append(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	// Rotate removes entries that are expired or equal to usedHash, then
	// appends the replacement, capped. This makes refresh tokens
	// single-use-rotating.
	Rotate(ctx context.Context, userID, usedHash, newHash string, expiresAt time.Time) error
	// Exists reports whether the ring holds an unexpired entry for the hash.
	Exists(ctx context.Context, userID, tokenHash string, now time.Time) (bool, error)
	// DeleteByHash removes one entry by exact hash match (logout).
	DeleteByHash(ctx context.Context, userID, tokenHash string) error
	CountByUserID(ctx context.Context, userID string) (int, error)
	DeleteExpired(ctx context.Context) error
}
