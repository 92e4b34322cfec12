package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tahamediouni1/RebiiProject/internal/domain"
)

// ErrTokenExpired is returned when a structurally valid token is past its
// expiry. Callers that need a specific "expired" message check for it; every
// other verification failure is deliberately indistinct.
var ErrTokenExpired = errors.New("token is expired")

// TokenManager issues and verifies the three token shapes used by the auth
// flows: access (24h, full identity claims), refresh (7d, type=refresh) and
// the short-lived 2FA bridge token (5m, type=2fa-temp, subject only).
type TokenManager struct {
	secret          []byte
	accessExpiry    time.Duration
	refreshExpiry   time.Duration
	tempTokenExpiry time.Duration
}

// NewTokenManager creates a new token manager
func NewTokenManager(secret string, accessExpiry, refreshExpiry, tempTokenExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:          []byte(secret),
		accessExpiry:    accessExpiry,
		refreshExpiry:   refreshExpiry,
		tempTokenExpiry: tempTokenExpiry,
	}
}

func (m *TokenManager) identityClaims(user *domain.User) jwt.MapClaims {
	claims := jwt.MapClaims{
		"sub":      user.ID,
		"id":       user.ID,
		"email":    user.Email,
		"username": user.Username,
		"role":     user.Role(),
		"isAdmin":  user.IsAdmin,
	}
	if user.FirstName != "" {
		claims["firstName"] = user.FirstName
	}
	if user.LastName != "" {
		claims["lastName"] = user.LastName
	}
	if user.PhoneNumber != nil {
		claims["phoneNumber"] = *user.PhoneNumber
	}
	return claims
}

func (m *TokenManager) sign(claims jwt.MapClaims, expiry time.Duration) (string, error) {
	now := time.Now()
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(expiry).Unix()
	// Distinct jti per token prevents replay-detection collisions between
	// tokens issued within the same second.
	claims["jti"] = uuid.New().String()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// GenerateTokenPair issues an access/refresh token pair for the user.
func (m *TokenManager) GenerateTokenPair(user *domain.User) (domain.TokenPair, error) {
	accessToken, err := m.sign(m.identityClaims(user), m.accessExpiry)
	if err != nil {
		return domain.TokenPair{}, err
	}

	refreshClaims := m.identityClaims(user)
	refreshClaims["type"] = domain.TokenTypeRefresh
	refreshToken, err := m.sign(refreshClaims, m.refreshExpiry)
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// GenerateTempToken issues the bridge token for a password-verified login
// that still awaits its 2FA code. It carries the subject only.
func (m *TokenManager) GenerateTempToken(userID string) (string, error) {
	return m.sign(jwt.MapClaims{
		"sub":  userID,
		"type": domain.TokenTypeTwoFA,
	}, m.tempTokenExpiry)
}

func (m *TokenManager) parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// AccessTokenExpiry returns the access token lifetime.
func (m *TokenManager) AccessTokenExpiry() time.Duration { return m.accessExpiry }

// RefreshTokenExpiry returns the refresh token lifetime.
func (m *TokenManager) RefreshTokenExpiry() time.Duration { return m.refreshExpiry }

// ValidateAccessToken verifies an access token and returns its identity
// claims. Refresh and temp tokens are rejected here: they must never pass
// as session credentials.
func (m *TokenManager) ValidateAccessToken(tokenString string) (*domain.TokenClaims, error) {
	claims, err := m.parse(tokenString)
	if err != nil {
		return nil, err
	}

	if t, _ := claims["type"].(string); t != "" {
		return nil, errors.New("invalid token type")
	}

	userID, ok := claims["id"].(string)
	if !ok || userID == "" {
		return nil, errors.New("invalid user id in token")
	}
	email, ok := claims["email"].(string)
	if !ok {
		return nil, errors.New("invalid email in token")
	}

	out := &domain.TokenClaims{
		UserID: userID,
		Email:  email,
	}
	out.Username, _ = claims["username"].(string)
	out.Role, _ = claims["role"].(string)
	out.IsAdmin, _ = claims["isAdmin"].(bool)
	out.FirstName, _ = claims["firstName"].(string)
	out.LastName, _ = claims["lastName"].(string)
	out.PhoneNumber, _ = claims["phoneNumber"].(string)
	return out, nil
}

// ValidateRefreshToken verifies a refresh token and returns the subject id.
func (m *TokenManager) ValidateRefreshToken(tokenString string) (string, error) {
	return m.validateTyped(tokenString, domain.TokenTypeRefresh)
}

// ValidateTempToken verifies a 2FA bridge token and returns the subject id.
func (m *TokenManager) ValidateTempToken(tokenString string) (string, error) {
	return m.validateTyped(tokenString, domain.TokenTypeTwoFA)
}

func (m *TokenManager) validateTyped(tokenString, wantType string) (string, error) {
	claims, err := m.parse(tokenString)
	if err != nil {
		return "", err
	}

	if t, _ := claims["type"].(string); t != wantType {
		return "", errors.New("invalid token type")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("invalid subject in token")
	}
	return sub, nil
}
