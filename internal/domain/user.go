package domain

import "time"

// MaxRefreshTokens bounds the per-user refresh token ring. The oldest entry
// is evicted first once the cap is reached.
const MaxRefreshTokens = 10

// User represents an account in the system
type User struct {
	ID             string     `json:"id" db:"id"`
	Username       string     `json:"username" db:"username"`
	Email          string     `json:"email" db:"email"`
	PasswordHash   string     `json:"-" db:"password_hash"`
	FirstName      string     `json:"first_name" db:"first_name"`
	LastName       string     `json:"last_name" db:"last_name"`
	Birthdate      time.Time  `json:"birthdate" db:"birthdate"`
	PhoneNumber    *string    `json:"phone_number" db:"phone_number"`
	IsAdmin        bool       `json:"is_admin" db:"is_admin"`
	AcceptTerms    bool       `json:"-" db:"accept_terms"`
	ProfilePicture *string    `json:"profile_picture" db:"profile_picture"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`

	EmailConfirmed            bool    `json:"email_confirmed" db:"email_confirmed"`
	EmailToken                *string `json:"-" db:"email_token"`
	EmailConfirmationAttempts int     `json:"-" db:"email_confirmation_attempts"`

	// At most one of TwoFactorSecret/TwoFactorTempSecret is active for
	// verification at a time; the temp secret only exists during enrollment.
	TwoFactorEnabled    bool    `json:"two_factor_enabled" db:"two_factor_enabled"`
	TwoFactorSecret     *string `json:"-" db:"two_factor_secret"`
	TwoFactorTempSecret *string `json:"-" db:"two_factor_temp_secret"`

	PasswordResetToken   *string    `json:"-" db:"password_reset_token"`
	PasswordResetExpires *time.Time `json:"-" db:"password_reset_expires"`

	FailedLoginAttempts int        `json:"-" db:"failed_login_attempts"`
	LockUntil           *time.Time `json:"-" db:"lock_until"`
}

// Role derives the user's role from the admin flag.
func (u *User) Role() string {
	if u.IsAdmin {
		return "admin"
	}
	return "user"
}

// Locked reports whether the account-scoped lock is still in effect.
func (u *User) Locked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

// RefreshToken is one entry of a user's refresh token ring
type RefreshToken struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	TokenHash string    `json:"-" db:"token_hash"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
