package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/tahamediouni1/RebiiProject/internal/apperr"
	"github.com/tahamediouni1/RebiiProject/internal/domain"
	"github.com/tahamediouni1/RebiiProject/internal/dto"
)

// hashToken hashes a refresh token for storage; the ring stores hashes, and
// exact-value semantics are preserved because equal tokens hash equal.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func buildUserInfo(user *domain.User) dto.UserInfo {
	return dto.UserInfo{
		ID:             user.ID,
		Username:       user.Username,
		Email:          user.Email,
		Role:           user.Role(),
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		PhoneNumber:    user.PhoneNumber,
		Birthdate:      user.Birthdate.Format(time.RFC3339),
		ProfilePicture: user.ProfilePicture,
		IsAdmin:        user.IsAdmin,
	}
}

func (s *authService) buildAuthResponse(pair domain.TokenPair, user *domain.User, now time.Time) *dto.AuthResponse {
	return &dto.AuthResponse{
		AccessToken:           pair.AccessToken,
		RefreshToken:          pair.RefreshToken,
		AccessTokenExpiresAt:  now.Add(s.tokens.AccessTokenExpiry()).Format(time.RFC3339),
		RefreshTokenExpiresAt: now.Add(s.tokens.RefreshTokenExpiry()).Format(time.RFC3339),
		User:                  buildUserInfo(user),
	}
}

// issueSession generates a token pair, appends the refresh token to the
// user's capped ring and returns the full auth response.
func (s *authService) issueSession(ctx context.Context, user *domain.User) (*dto.AuthResponse, error) {
	pair, err := s.tokens.GenerateTokenPair(user)
	if err != nil {
		return nil, apperr.Internal("failed to issue tokens", err)
	}

	now := time.Now()
	expiresAt := now.Add(s.tokens.RefreshTokenExpiry())
	if err := s.tokenRepo.Append(ctx, user.ID, hashToken(pair.RefreshToken), expiresAt); err != nil {
		return nil, apperr.Internal("failed to store refresh token", err)
	}

	return s.buildAuthResponse(pair, user, now), nil
}
