package dto

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Username       string  `json:"username" binding:"required,min=5,max=20"`
	Email          string  `json:"email" binding:"required,email"`
	Password       string  `json:"password" binding:"required,min=6"`
	FirstName      string  `json:"firstName" binding:"required,min=2,max=50"`
	LastName       string  `json:"lastName" binding:"required,min=2,max=50"`
	Birthdate      string  `json:"birthdate" binding:"required"`
	PhoneNumber    *string `json:"phoneNumber"`
	AcceptTerms    bool    `json:"acceptTerms"`
	ProfilePicture *string `json:"profilePicture"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TwoFactorLoginRequest completes a login that was answered with a
// two-factor challenge
type TwoFactorLoginRequest struct {
	TempToken string `json:"tempToken" binding:"required"`
	Code      string `json:"code" binding:"required"`
}

// TwoFactorVerifyRequest carries the enrollment verification code
type TwoFactorVerifyRequest struct {
	Code string `json:"code" binding:"required"`
}

// DisableTwoFactorRequest requires the current password to turn 2FA off
type DisableTwoFactorRequest struct {
	Password string `json:"password" binding:"required"`
}

// RefreshTokenRequest represents a token refresh request
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// LogoutRequest removes one refresh token by exact value
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// ForgotPasswordRequest starts the password reset flow
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest completes the password reset flow
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=6"`
}

// ResendConfirmationRequest asks for a fresh confirmation email
type ResendConfirmationRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// UpdateUserRequest carries a partial profile update; nil fields are
// left untouched
type UpdateUserRequest struct {
	Username       *string `json:"username"`
	Email          *string `json:"email"`
	Password       *string `json:"password"`
	FirstName      *string `json:"firstName"`
	LastName       *string `json:"lastName"`
	Birthdate      *string `json:"birthdate"`
	PhoneNumber    *string `json:"phoneNumber"`
	ProfilePicture *string `json:"profilePicture"`
}
