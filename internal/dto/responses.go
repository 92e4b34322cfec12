package dto

import "time"

// UserInfo is the identity block embedded in auth responses
type UserInfo struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	Email          string  `json:"email"`
	Role           string  `json:"role"`
	FirstName      string  `json:"firstName"`
	LastName       string  `json:"lastName"`
	PhoneNumber    *string `json:"phoneNumber,omitempty"`
	Birthdate      string  `json:"birthdate"`
	ProfilePicture *string `json:"profilePicture,omitempty"`
	IsAdmin        bool    `json:"isAdmin"`
}

// AuthResponse is the full session payload returned by completed logins,
// refreshes and the OAuth callback
type AuthResponse struct {
	AccessToken           string   `json:"accessToken"`
	RefreshToken          string   `json:"refreshToken"`
	AccessTokenExpiresAt  string   `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt string   `json:"refreshTokenExpiresAt"`
	User                  UserInfo `json:"user"`
}

// TwoFactorChallengeResponse is the login outcome for 2FA-enabled accounts
type TwoFactorChallengeResponse struct {
	TempToken         string `json:"tempToken"`
	TwoFactorRequired bool   `json:"twoFactorRequired"`
}

// TwoFactorSetupResponse carries the provisioning QR code (PNG data URL)
// and the secret for manual entry
type TwoFactorSetupResponse struct {
	QRCode string `json:"qrCode"`
	Secret string `json:"secret"`
}

// RegistrationResponse acknowledges a registration pending confirmation
type RegistrationResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

// ConfirmEmailResponse reports the outcome of an email confirmation attempt
type ConfirmEmailResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// PublicUser is the profile shape exposed to other users
type PublicUser struct {
	Username       string    `json:"username"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Birthdate      time.Time `json:"birthdate"`
	DateJoined     time.Time `json:"dateJoined"`
	ProfilePicture *string   `json:"profilePicture,omitempty"`
	EmailConfirmed bool      `json:"emailConfirmed"`
}

// PrivateUser is the profile shape exposed to the account owner
type PrivateUser struct {
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Birthdate      time.Time `json:"birthdate"`
	DateJoined     time.Time `json:"dateJoined"`
	ProfilePicture *string   `json:"profilePicture,omitempty"`
	EmailConfirmed bool      `json:"emailConfirmed"`
}

// UserResponse wraps a public profile
type UserResponse struct {
	Message string     `json:"message"`
	User    PublicUser `json:"user"`
}

// PrivateUserResponse wraps the owner's profile
type PrivateUserResponse struct {
	Message string      `json:"message"`
	User    PrivateUser `json:"user"`
}

// AdminUser is the listing shape for the admin users endpoint
type AdminUser struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Birthdate      time.Time `json:"birthdate"`
	ProfilePicture *string   `json:"profilePicture,omitempty"`
	PhoneNumber    *string   `json:"phoneNumber,omitempty"`
	IsAdmin        bool      `json:"isAdmin"`
	Role           string    `json:"role"`
	DateJoined     time.Time `json:"dateJoined"`
}

// UsersListResponse wraps the admin listing
type UsersListResponse struct {
	Message string      `json:"message"`
	Users   []AdminUser `json:"users"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Type    string      `json:"type,omitempty"`
	Email   string      `json:"email,omitempty"`
	Details interface{} `json:"details,omitempty"`
}
