package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tahamediouni1/RebiiProject/internal/apperr"
	"github.com/tahamediouni1/RebiiProject/internal/domain"
	"github.com/tahamediouni1/RebiiProject/internal/dto"
	"github.com/tahamediouni1/RebiiProject/internal/repository"
	"github.com/tahamediouni1/RebiiProject/internal/utils"
)

const (
	maxFailedLogins   = 5
	accountLockPeriod = 15 * time.Minute
	resetTokenPeriod  = time.Hour
)

// authService implements AuthService
type authService struct {
	userRepo   repository.UserRepository
	tokenRepo  repository.TokenRepository
	tokens     *utils.TokenManager
	limiter    *AttemptLimiter
	email      EmailSender
	google     *GoogleProvider
	logger     *zap.Logger
	bcryptCost int
	issuer     string
}

// NewAuthService creates the auth orchestrator. google may be nil when the
// OAuth flow is not configured.
func NewAuthService(
	userRepo repository.UserRepository,
	tokenRepo repository.TokenRepository,
	tokens *utils.TokenManager,
	limiter *AttemptLimiter,
	email EmailSender,
	google *GoogleProvider,
	logger *zap.Logger,
	bcryptCost int,
	issuer string,
) AuthService {
	return &authService{
		userRepo:   userRepo,
		tokenRepo:  tokenRepo,
		tokens:     tokens,
		limiter:    limiter,
		email:      email,
		google:     google,
		logger:     logger,
		bcryptCost: bcryptCost,
		issuer:     issuer,
	}
}

func parseBirthdate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

// Register creates an account and sends the confirmation email. Nothing is
// written to the store before the terms gate and the duplicate check pass.
func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.RegistrationResponse, error) {
	if !req.AcceptTerms {
		return nil, apperr.Validation("You must accept the terms and conditions")
	}

	email := utils.SanitizeEmail(req.Email)
	if !utils.ValidateEmail(email) {
		return nil, apperr.Validation("Invalid email format")
	}
	if !utils.ValidateUsername(req.Username) {
		return nil, apperr.Validation("Username must be between 5 and 20 characters")
	}
	if !utils.ValidatePassword(req.Password) {
		return nil, apperr.Validation("Password must be at least 6 characters")
	}

	birthdate, err := parseBirthdate(req.Birthdate)
	if err != nil {
		return nil, apperr.Validation("Failed to parse birthdate")
	}

	existing, err := s.userRepo.GetByEmailOrUsername(ctx, email, req.Username)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal("failed to check account existence", err)
	}
	if existing != nil {
		if existing.EmailConfirmed {
			return nil, apperr.Conflict(apperr.ConflictAccountExists,
				"Username or email is already registered")
		}
		conflict := apperr.Conflict(apperr.ConflictEmailNotConfirmed,
			"Account exists but email is not confirmed. Please check your email or request a new confirmation.")
		conflict.Email = email
		return nil, conflict
	}

	passwordHash, err := utils.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, apperr.Internal("unable to process password", err)
	}

	emailToken, err := utils.RandomHex(16)
	if err != nil {
		return nil, apperr.Internal("failed to generate confirmation token", err)
	}

	profilePicture := req.ProfilePicture
	if profilePicture == nil {
		avatar := utils.DefaultAvatar(req.Username)
		profilePicture = &avatar
	}

	user := &domain.User{
		Username:       req.Username,
		Email:          email,
		PasswordHash:   passwordHash,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Birthdate:      birthdate,
		PhoneNumber:    req.PhoneNumber,
		AcceptTerms:    req.AcceptTerms,
		ProfilePicture: profilePicture,
		EmailToken:     &emailToken,
		EmailConfirmed: false,
		IsAdmin:        false,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, apperr.Conflict(apperr.ConflictAccountExists,
				"Username or email is already registered")
		}
		return nil, apperr.Internal("failed to create user", err)
	}

	if err := s.email.SendConfirmationEmail(ctx, email, emailToken); err != nil {
		s.logger.Error("failed to send confirmation email",
			zap.String("user_id", user.ID), zap.Error(err))
		return nil, apperr.Internal("failed to send confirmation email", err)
	}

	return &dto.RegistrationResponse{
		Message: "Registration successful! Please check your email to confirm your account.",
		Email:   user.Email,
	}, nil
}

// Login authenticates credentials. Accounts with 2FA enabled get a
// challenge with a temp token instead of a session.
func (s *authService) Login(ctx context.Context, email, password, ip string) (*LoginResult, error) {
	email = utils.SanitizeEmail(email)

	if check := s.limiter.CheckLogin(email, ip); !check.Allowed {
		return nil, apperr.RateLimited("Too many failed login attempts. Please try again later.",
			time.Until(check.BlockedUntil))
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.limiter.RecordFailedLogin(email, ip)
			return nil, apperr.Auth("Invalid email or password")
		}
		return nil, apperr.Internal("failed to get user", err)
	}

	if user.Locked(time.Now()) {
		return nil, apperr.Forbidden("Account is temporarily locked due to too many failed attempts")
	}

	if !user.EmailConfirmed {
		return nil, apperr.Forbidden("Email not confirmed. Please confirm your email before logging in.")
	}

	if !utils.CheckPasswordHash(password, user.PasswordHash) {
		if err := s.recordFailedPassword(ctx, user); err != nil {
			s.logger.Error("failed to record failed login", zap.String("user_id", user.ID), zap.Error(err))
		}
		s.limiter.RecordFailedLogin(email, ip)
		return nil, apperr.Auth("Invalid email or password")
	}

	if user.TwoFactorEnabled {
		tempToken, err := s.tokens.GenerateTempToken(user.ID)
		if err != nil {
			return nil, apperr.Internal("failed to issue temp token", err)
		}
		return &LoginResult{Challenge: &dto.TwoFactorChallengeResponse{
			TempToken:         tempToken,
			TwoFactorRequired: true,
		}}, nil
	}

	if err := s.forgiveFailedPassword(ctx, user); err != nil {
		s.logger.Error("failed to reset login attempts", zap.String("user_id", user.ID), zap.Error(err))
	}
	s.limiter.ClearLoginAttempts(email, ip)

	auth, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Auth: auth}, nil
}

// recordFailedPassword maintains the account-scoped lock, a second lockout
// layered on top of the identifier+IP limiter.
func (s *authService) recordFailedPassword(ctx context.Context, user *domain.User) error {
	user.FailedLoginAttempts++
	if user.FailedLoginAttempts >= maxFailedLogins {
		until := time.Now().Add(accountLockPeriod)
		user.LockUntil = &until
	}
	return s.userRepo.Update(ctx, user)
}

func (s *authService) forgiveFailedPassword(ctx context.Context, user *domain.User) error {
	if user.FailedLoginAttempts == 0 && user.LockUntil == nil {
		return nil
	}
	user.FailedLoginAttempts = 0
	user.LockUntil = nil
	return s.userRepo.Update(ctx, user)
}

// Logout removes the presented refresh token by exact value. Access tokens
// stay valid until natural expiry.
func (s *authService) Logout(ctx context.Context, userID, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.tokenRepo.DeleteByHash(ctx, userID, hashToken(refreshToken)); err != nil {
		return apperr.Internal("failed to remove refresh token", err)
	}
	return nil
}

// RefreshTokens rotates the presented refresh token for a new pair. A
// rotated-out token fails the ring lookup, making refresh single-use.
func (s *authService) RefreshTokens(ctx context.Context, refreshToken string) (*dto.AuthResponse, error) {
	userID, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, utils.ErrTokenExpired) {
			return nil, apperr.Auth("Refresh token has expired")
		}
		return nil, apperr.Auth("Invalid refresh token")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Auth("Invalid refresh token")
		}
		return nil, apperr.Internal("failed to get user", err)
	}

	now := time.Now()
	usedHash := hashToken(refreshToken)
	ok, err := s.tokenRepo.Exists(ctx, user.ID, usedHash, now)
	if err != nil {
		return nil, apperr.Internal("failed to check refresh token", err)
	}
	if !ok {
		return nil, apperr.Auth("Invalid or expired refresh token")
	}

	pair, err := s.tokens.GenerateTokenPair(user)
	if err != nil {
		return nil, apperr.Internal("failed to issue tokens", err)
	}

	expiresAt := now.Add(s.tokens.RefreshTokenExpiry())
	if err := s.tokenRepo.Rotate(ctx, user.ID, usedHash, hashToken(pair.RefreshToken), expiresAt); err != nil {
		return nil, apperr.Internal("failed to rotate refresh token", err)
	}

	return s.buildAuthResponse(pair, user, now), nil
}

// ValidateToken verifies an access token for the request guard.
func (s *authService) ValidateToken(ctx context.Context, token string) (*domain.TokenClaims, error) {
	claims, err := s.tokens.ValidateAccessToken(token)
	if err != nil {
		return nil, apperr.Auth("Invalid or expired token")
	}
	return claims, nil
}

// ForgotPassword starts the reset flow. Unknown emails return success to
// avoid account enumeration.
func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return apperr.Internal("failed to get user", err)
	}

	resetToken, err := utils.RandomHex(16)
	if err != nil {
		return apperr.Internal("failed to generate reset token", err)
	}

	expires := time.Now().Add(resetTokenPeriod)
	user.PasswordResetToken = &resetToken
	user.PasswordResetExpires = &expires
	if err := s.userRepo.Update(ctx, user); err != nil {
		return apperr.Internal("failed to store reset token", err)
	}

	if err := s.email.SendPasswordResetEmail(ctx, user.Email, resetToken); err != nil {
		s.logger.Error("failed to send password reset email",
			zap.String("user_id", user.ID), zap.Error(err))
		return apperr.Internal("failed to send password reset email", err)
	}
	return nil
}

// ResetPassword completes the reset flow and clears the account lock.
func (s *authService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !utils.ValidatePassword(newPassword) {
		return apperr.Validation("Password must be at least 6 characters")
	}

	user, err := s.userRepo.GetByResetToken(ctx, token, time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.Validation("Invalid or expired token")
		}
		return apperr.Internal("failed to look up reset token", err)
	}

	passwordHash, err := utils.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperr.Internal("unable to process password", err)
	}

	user.PasswordHash = passwordHash
	user.PasswordResetToken = nil
	user.PasswordResetExpires = nil
	user.FailedLoginAttempts = 0
	user.LockUntil = nil
	if err := s.userRepo.Update(ctx, user); err != nil {
		return apperr.Internal("failed to update password", err)
	}
	return nil
}

// ConfirmEmail marks the account confirmed. Invalid or already-used tokens
// report failure without mutating anything.
func (s *authService) ConfirmEmail(ctx context.Context, token string) *dto.ConfirmEmailResponse {
	user, err := s.userRepo.GetByEmailToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &dto.ConfirmEmailResponse{Success: false, Message: "Invalid confirmation token"}
		}
		s.logger.Error("failed to look up confirmation token", zap.Error(err))
		return &dto.ConfirmEmailResponse{Success: false, Message: "Failed to confirm email"}
	}

	if user.EmailConfirmed {
		return &dto.ConfirmEmailResponse{Success: false, Message: "Email is already confirmed"}
	}

	user.EmailConfirmed = true
	user.EmailToken = nil
	user.EmailConfirmationAttempts = 0
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.logger.Error("failed to confirm email", zap.String("user_id", user.ID), zap.Error(err))
		return &dto.ConfirmEmailResponse{Success: false, Message: "Failed to confirm email"}
	}

	return &dto.ConfirmEmailResponse{Success: true, Message: "Email confirmed successfully"}
}

// ResendConfirmationEmail issues a fresh confirmation token, rate limited
// per user.
func (s *authService) ResendConfirmationEmail(ctx context.Context, email string) (*dto.SuccessResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Internal("failed to get user", err)
	}

	if user.EmailConfirmed {
		return nil, apperr.Conflict("", "Email is already confirmed")
	}

	if check := s.limiter.CheckEmailAttempts(user.ID); !check.Allowed {
		waitMinutes := int((check.WaitTime + time.Minute - 1) / time.Minute)
		return nil, apperr.RateLimited(
			fmt.Sprintf("Please wait %d minutes before requesting another confirmation email", waitMinutes),
			check.WaitTime)
	}

	newToken, err := utils.RandomHex(16)
	if err != nil {
		return nil, apperr.Internal("failed to generate confirmation token", err)
	}
	user.EmailToken = &newToken
	user.EmailConfirmationAttempts++
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, apperr.Internal("failed to store confirmation token", err)
	}

	if err := s.email.SendConfirmationEmail(ctx, user.Email, newToken); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "Unable to resend confirmation email", err)
	}
	s.limiter.RecordEmailAttempt(user.ID)

	return &dto.SuccessResponse{Message: "Confirmation email sent successfully"}, nil
}
