package service

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/tahamediouni1/RebiiProject/internal/apperr"
	"github.com/tahamediouni1/RebiiProject/internal/config"
	"github.com/tahamediouni1/RebiiProject/internal/domain"
	"github.com/tahamediouni1/RebiiProject/internal/repository"
	"github.com/tahamediouni1/RebiiProject/internal/utils"
)

const (
	googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

	maxUsernameLength   = 20
	minUsernameLength   = 5
	usernameSuffixTries = 20
)

// GoogleProvider wraps the Google OAuth client configuration. endpoints are
// fields so tests can point the provider at a local server.
type GoogleProvider struct {
	oauth        *oauth2.Config
	tokenInfoURL string
	httpClient   *http.Client
	frontendURL  string
}

// NewGoogleProvider builds the provider from the validated config.
func NewGoogleProvider(cfg config.GoogleConfig, frontendURL string) *GoogleProvider {
	client := http.DefaultClient
	if cfg.AllowInsecureTLS {
		client = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
			Timeout: 10 * time.Second,
		}
	}

	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		tokenInfoURL: googleTokenInfoURL,
		httpClient:   client,
		frontendURL:  frontendURL,
	}
}

// googleState is the caller context carried through the OAuth round-trip in
// the state parameter, encoded as base64url JSON.
type googleState struct {
	Mode        string `json:"mode"`
	Lang        string `json:"lang"`
	RedirectURI string `json:"redirectUri"`
}

var errMalformedState = errors.New("malformed oauth state")

// newState resolves the caller context into the exact shape decodeState will
// accept on the way back: mode and lang defaulted, the return URL already
// sanitized against the frontend origin.
func (p *GoogleProvider) newState(params GoogleAuthParams) (googleState, error) {
	state := googleState{Mode: params.Mode, Lang: params.Lang}
	if state.Mode == "" {
		state.Mode = "login"
	}
	if state.Mode != "login" && state.Mode != "register" {
		return googleState{}, fmt.Errorf("unknown oauth mode %q", params.Mode)
	}
	if state.Lang == "" {
		state.Lang = "en"
	}
	state.RedirectURI = p.frontendRedirect(googleState{Lang: state.Lang, RedirectURI: params.RedirectURI})
	return state, nil
}

func encodeState(state googleState) (string, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to encode oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// decodeState accepts only the shape newState produces. Anything else is a
// hard failure: a state this service did not mint gets rejected, not
// repaired with defaults.
func decodeState(encoded string) (googleState, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return googleState{}, errMalformedState
	}
	var state googleState
	if err := json.Unmarshal(raw, &state); err != nil {
		return googleState{}, errMalformedState
	}
	if state.Mode != "login" && state.Mode != "register" {
		return googleState{}, errMalformedState
	}
	if state.Lang == "" || state.RedirectURI == "" {
		return googleState{}, errMalformedState
	}
	return state, nil
}

// frontendRedirect picks where the callback sends the browser. A redirectUri
// from the state is honored only when its origin matches the configured
// frontend; anything else falls back to the default callback page.
func (p *GoogleProvider) frontendRedirect(state googleState) string {
	fallback := fmt.Sprintf("%s/%s/auth/callback", strings.TrimRight(p.frontendURL, "/"), state.Lang)
	if state.RedirectURI == "" {
		return fallback
	}

	requested, err := url.Parse(state.RedirectURI)
	if err != nil {
		return fallback
	}
	allowed, err := url.Parse(p.frontendURL)
	if err != nil {
		return fallback
	}
	if requested.Scheme != allowed.Scheme || requested.Host != allowed.Host {
		return fallback
	}
	return state.RedirectURI
}

// tokenInfo is the subset of Google's tokeninfo response the flow needs.
type tokenInfo struct {
	Aud           string `json:"aud"`
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// verifyIDToken checks the ID token against Google's tokeninfo endpoint and
// rejects tokens minted for a different client. Verification fails closed.
func (p *GoogleProvider) verifyIDToken(ctx context.Context, idToken string) (*tokenInfo, error) {
	endpoint := p.tokenInfoURL + "?id_token=" + url.QueryEscape(idToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tokeninfo request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tokeninfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tokeninfo rejected the token: status %d", resp.StatusCode)
	}

	var info tokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode tokeninfo response: %w", err)
	}

	if info.Aud != p.oauth.ClientID {
		return nil, errors.New("token audience does not match client id")
	}
	if info.Email == "" {
		return nil, errors.New("token carries no email")
	}
	return &info, nil
}

// GetGoogleAuthURL returns the Google consent screen URL with the caller
// context packed into the state parameter.
func (s *authService) GetGoogleAuthURL(params GoogleAuthParams) (string, error) {
	if s.google == nil {
		return "", apperr.Validation("Google sign-in is not available")
	}
	state, err := s.google.newState(params)
	if err != nil {
		return "", apperr.Validation("Invalid oauth parameters")
	}
	encoded, err := encodeState(state)
	if err != nil {
		return "", apperr.Internal("failed to build oauth state", err)
	}
	return s.google.oauth.AuthCodeURL(encoded,
		oauth2.SetAuthURLParam("prompt", "select_account")), nil
}

// HandleGoogleCallback exchanges the authorization code, verifies the
// identity, provisions or finds the local account and returns the frontend
// redirect URL carrying the session.
func (s *authService) HandleGoogleCallback(ctx context.Context, code, state string) (string, error) {
	if s.google == nil {
		return "", apperr.Validation("Google sign-in is not available")
	}

	decoded, err := decodeState(state)
	if err != nil {
		return "", apperr.Validation("Invalid oauth state")
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, s.google.httpClient)
	token, err := s.google.oauth.Exchange(exchangeCtx, code)
	if err != nil {
		return "", apperr.Wrap(apperr.KindAuth, "Failed to exchange authorization code", err)
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" || token.AccessToken == "" {
		return "", apperr.Auth("Google response is missing required tokens")
	}

	info, err := s.google.verifyIDToken(ctx, idToken)
	if err != nil {
		return "", apperr.Wrap(apperr.KindAuth, "Failed to verify Google identity", err)
	}

	user, err := s.findOrCreateGoogleUser(ctx, info)
	if err != nil {
		return "", err
	}

	auth, err := s.issueSession(ctx, user)
	if err != nil {
		return "", err
	}

	redirect, err := url.Parse(s.google.frontendRedirect(decoded))
	if err != nil {
		return "", apperr.Internal("invalid frontend redirect", err)
	}
	query := redirect.Query()
	query.Set("accessToken", auth.AccessToken)
	query.Set("refreshToken", auth.RefreshToken)
	query.Set("accessTokenExpiresAt", auth.AccessTokenExpiresAt)
	query.Set("refreshTokenExpiresAt", auth.RefreshTokenExpiresAt)
	query.Set("userId", user.ID)
	query.Set("role", user.Role())
	query.Set("isAdmin", strconv.FormatBool(user.IsAdmin))
	redirect.RawQuery = query.Encode()

	return redirect.String(), nil
}

// findOrCreateGoogleUser maps the verified Google identity to a local
// account. Federated accounts are created confirmed, with a random password
// so the credential path stays unusable until the user sets one.
func (s *authService) findOrCreateGoogleUser(ctx context.Context, info *tokenInfo) (*domain.User, error) {
	email := utils.SanitizeEmail(info.Email)

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		if !user.EmailConfirmed {
			// Google verified the address; trust it.
			user.EmailConfirmed = true
			user.EmailToken = nil
			if err := s.userRepo.Update(ctx, user); err != nil {
				return nil, apperr.Internal("failed to confirm federated email", err)
			}
		}
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal("failed to get user", err)
	}

	username, err := s.generateUniqueUsername(ctx, info)
	if err != nil {
		return nil, err
	}

	randomPassword, err := utils.RandomHex(16)
	if err != nil {
		return nil, apperr.Internal("failed to generate password", err)
	}
	passwordHash, err := utils.HashPassword(randomPassword, s.bcryptCost)
	if err != nil {
		return nil, apperr.Internal("unable to process password", err)
	}

	firstName, lastName := extractNames(info)
	var picture *string
	if info.Picture != "" {
		picture = &info.Picture
	} else {
		avatar := utils.DefaultAvatar(username)
		picture = &avatar
	}

	user = &domain.User{
		Username:       username,
		Email:          email,
		PasswordHash:   passwordHash,
		FirstName:      firstName,
		LastName:       lastName,
		Birthdate:      time.Now().UTC().Truncate(24 * time.Hour),
		AcceptTerms:    true,
		ProfilePicture: picture,
		EmailConfirmed: true,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, apperr.Internal("failed to create federated user", err)
	}

	s.logger.Info("created federated account",
		zap.String("user_id", user.ID), zap.String("username", username))
	return user, nil
}

func extractNames(info *tokenInfo) (string, string) {
	firstName := info.GivenName
	lastName := info.FamilyName
	if firstName == "" && info.Name != "" {
		parts := strings.Fields(info.Name)
		firstName = parts[0]
		if len(parts) > 1 {
			lastName = strings.Join(parts[1:], " ")
		}
	}
	if firstName == "" {
		firstName = "Google"
	}
	if lastName == "" {
		lastName = "User"
	}
	return firstName, lastName
}

// slugifyUsername derives a username candidate from the email local part:
// lowercase alphanumerics only, trimmed to the maximum length and padded to
// the minimum.
func slugifyUsername(email string) string {
	local := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		local = email[:at]
	}

	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	slug := b.String()
	if len(slug) > maxUsernameLength {
		slug = slug[:maxUsernameLength]
	}
	if len(slug) < minUsernameLength {
		slug = "user-" + slug
		if len(slug) > maxUsernameLength {
			slug = slug[:maxUsernameLength]
		}
	}
	return slug
}

// generateUniqueUsername tries the slug, then numbered variants, then a
// random fallback, never exceeding the length cap.
func (s *authService) generateUniqueUsername(ctx context.Context, info *tokenInfo) (string, error) {
	base := slugifyUsername(info.Email)

	candidates := make([]string, 0, usernameSuffixTries+1)
	candidates = append(candidates, base)
	for i := 1; i <= usernameSuffixTries; i++ {
		suffix := strconv.Itoa(i)
		trimmed := base
		if len(trimmed)+len(suffix) > maxUsernameLength {
			trimmed = trimmed[:maxUsernameLength-len(suffix)]
		}
		candidates = append(candidates, trimmed+suffix)
	}

	for _, candidate := range candidates {
		_, err := s.userRepo.GetByUsername(ctx, candidate)
		if errors.Is(err, repository.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", apperr.Internal("failed to check username", err)
		}
	}

	random, err := utils.RandomHex(6)
	if err != nil {
		return "", apperr.Internal("failed to generate username", err)
	}
	return "user-" + random, nil
}
