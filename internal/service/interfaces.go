package service

import (
	"context"

	"github.com/tahamediouni1/RebiiProject/internal/domain"
	"github.com/tahamediouni1/RebiiProject/internal/dto"
)

// EmailSender is the delivery capability the auth flows depend on. The core
// renders nothing here; it only hands over recipient and token.
type EmailSender interface {
	SendConfirmationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
}

// LoginResult is the tagged outcome of a credential login: exactly one of
// Auth (completed session) or Challenge (2FA pending) is set.
type LoginResult struct {
	Auth      *dto.AuthResponse
	Challenge *dto.TwoFactorChallengeResponse
}

// GoogleAuthParams carries the caller context preserved across the OAuth
// round-trip.
type GoogleAuthParams struct {
	Mode        string
	Lang        string
	RedirectURI string
}

// AuthService defines the public operation surface of the auth core
type AuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) (*dto.RegistrationResponse, error)
	Login(ctx context.Context, email, password, ip string) (*LoginResult, error)
	Logout(ctx context.Context, userID, refreshToken string) error
	RefreshTokens(ctx context.Context, refreshToken string) (*dto.AuthResponse, error)
	ValidateToken(ctx context.Context, token string) (*domain.TokenClaims, error)

	SetupTwoFactor(ctx context.Context, userID string) (*dto.TwoFactorSetupResponse, error)
	VerifyTwoFactor(ctx context.Context, userID, code, ip string) (bool, error)
	DisableTwoFactor(ctx context.Context, userID, password string) error
	TwoFactorLogin(ctx context.Context, tempToken, code, ip string) (*dto.AuthResponse, error)

	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ConfirmEmail(ctx context.Context, token string) *dto.ConfirmEmailResponse
	ResendConfirmationEmail(ctx context.Context, email string) (*dto.SuccessResponse, error)

	GetGoogleAuthURL(params GoogleAuthParams) (string, error)
	HandleGoogleCallback(ctx context.Context, code, state string) (string, error)

	FetchUser(ctx context.Context, userID string) (*dto.PrivateUserResponse, error)
	FetchUserByID(ctx context.Context, userID string) (*dto.UserResponse, error)
	FetchAllUsers(ctx context.Context) (*dto.UsersListResponse, error)
	UpdateUser(ctx context.Context, userID string, req *dto.UpdateUserRequest) (*dto.PrivateUserResponse, error)
	DeleteUser(ctx context.Context, userID string) error
	DeleteUserByAdmin(ctx context.Context, adminID, userID string) error
}
