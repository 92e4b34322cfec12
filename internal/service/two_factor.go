package service

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/tahamediouni1/RebiiProject/internal/apperr"
	"github.com/tahamediouni1/RebiiProject/internal/dto"
	"github.com/tahamediouni1/RebiiProject/internal/repository"
	"github.com/tahamediouni1/RebiiProject/internal/utils"
)

const qrCodeSize = 256

// SetupTwoFactor starts enrollment: a fresh secret is stored as the temp
// secret and returned with a provisioning QR code. The permanent secret, if
// any, stays untouched until the code is verified.
func (s *authService) SetupTwoFactor(ctx context.Context, userID string) (*dto.TwoFactorSetupResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.TwoFactorEnabled {
		return nil, apperr.Conflict("", "Two-factor authentication is already enabled")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: user.Email,
	})
	if err != nil {
		return nil, apperr.Internal("failed to generate totp secret", err)
	}

	secret := key.Secret()
	user.TwoFactorTempSecret = &secret
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, apperr.Internal("failed to store temp secret", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, qrCodeSize)
	if err != nil {
		return nil, apperr.Internal("failed to render qr code", err)
	}

	return &dto.TwoFactorSetupResponse{
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		Secret: secret,
	}, nil
}

// VerifyTwoFactor completes enrollment. A valid code promotes the temp
// secret to the permanent one; an invalid code leaves the temp secret in
// place so the user can retry against the same QR code. Enrollment code
// attempts consume the same credential limiter bucket as password and
// login-step code failures.
func (s *authService) VerifyTwoFactor(ctx context.Context, userID, code, ip string) (bool, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return false, err
	}

	if user.TwoFactorTempSecret == nil {
		return false, apperr.Validation("Two-factor setup has not been started")
	}

	if check := s.limiter.CheckLogin(user.Email, ip); !check.Allowed {
		return false, apperr.RateLimited("Too many failed login attempts. Please try again later.",
			time.Until(check.BlockedUntil))
	}

	if !totp.Validate(code, *user.TwoFactorTempSecret) {
		s.limiter.RecordFailedLogin(user.Email, ip)
		return false, nil
	}

	s.limiter.ClearLoginAttempts(user.Email, ip)

	user.TwoFactorSecret = user.TwoFactorTempSecret
	user.TwoFactorTempSecret = nil
	user.TwoFactorEnabled = true
	if err := s.userRepo.Update(ctx, user); err != nil {
		return false, apperr.Internal("failed to enable two-factor", err)
	}

	s.logger.Info("two-factor enabled", zap.String("user_id", user.ID))
	return true, nil
}

// DisableTwoFactor turns 2FA off after re-authenticating with the password.
func (s *authService) DisableTwoFactor(ctx context.Context, userID, password string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}

	if !user.TwoFactorEnabled {
		return apperr.Validation("Two-factor authentication is not enabled")
	}
	if !utils.CheckPasswordHash(password, user.PasswordHash) {
		return apperr.Auth("Invalid password")
	}

	user.TwoFactorEnabled = false
	user.TwoFactorSecret = nil
	user.TwoFactorTempSecret = nil
	if err := s.userRepo.Update(ctx, user); err != nil {
		return apperr.Internal("failed to disable two-factor", err)
	}

	s.logger.Info("two-factor disabled", zap.String("user_id", user.ID))
	return nil
}

// TwoFactorLogin exchanges a temp token plus a TOTP code for a session.
// Code attempts share the credential limiter bucket, so the temp token
// cannot be used to brute force codes past the lockout.
func (s *authService) TwoFactorLogin(ctx context.Context, tempToken, code, ip string) (*dto.AuthResponse, error) {
	userID, err := s.tokens.ValidateTempToken(tempToken)
	if err != nil {
		if errors.Is(err, utils.ErrTokenExpired) {
			return nil, apperr.Auth("Temporary token has expired. Please log in again.")
		}
		return nil, apperr.Auth("Invalid temporary token")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Auth("Invalid temporary token")
		}
		return nil, apperr.Internal("failed to get user", err)
	}

	if !user.TwoFactorEnabled || user.TwoFactorSecret == nil {
		return nil, apperr.Validation("Two-factor authentication is not enabled for this account")
	}

	if check := s.limiter.CheckLogin(user.Email, ip); !check.Allowed {
		return nil, apperr.RateLimited("Too many failed login attempts. Please try again later.",
			time.Until(check.BlockedUntil))
	}

	if !totp.Validate(code, *user.TwoFactorSecret) {
		s.limiter.RecordFailedLogin(user.Email, ip)
		return nil, apperr.Auth("Invalid two-factor code")
	}

	if err := s.forgiveFailedPassword(ctx, user); err != nil {
		s.logger.Error("failed to reset login attempts", zap.String("user_id", user.ID), zap.Error(err))
	}
	s.limiter.ClearLoginAttempts(user.Email, ip)

	return s.issueSession(ctx, user)
}
