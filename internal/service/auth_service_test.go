package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tahamediouni1/RebiiProject/internal/apperr"
	"github.com/tahamediouni1/RebiiProject/internal/domain"
	"github.com/tahamediouni1/RebiiProject/internal/dto"
	"github.com/tahamediouni1/RebiiProject/internal/utils"
)

const testBCryptCost = 4

type serviceFixture struct {
	svc       *authService
	users     *fakeUserRepo
	tokenRepo *fakeTokenRepo
	email     *fakeEmailSender
	limiter   *AttemptLimiter
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	users := newFakeUserRepo()
	tokenRepo := newFakeTokenRepo()
	email := &fakeEmailSender{}
	limiter := NewAttemptLimiter()

	tokens := utils.NewTokenManager(
		"test-secret-key-that-is-at-least-32-characters-long",
		time.Hour, 7*24*time.Hour, 5*time.Minute,
	)

	svc := NewAuthService(users, tokenRepo, tokens, limiter, email, nil,
		zap.NewNop(), testBCryptCost, "Rebii").(*authService)

	return &serviceFixture{
		svc:       svc,
		users:     users,
		tokenRepo: tokenRepo,
		email:     email,
		limiter:   limiter,
	}
}

func validRegisterRequest() *dto.RegisterRequest {
	return &dto.RegisterRequest{
		Username:    "johndoe",
		Email:       "john@example.com",
		Password:    "secret123",
		FirstName:   "John",
		LastName:    "Doe",
		Birthdate:   "1990-05-12",
		AcceptTerms: true,
	}
}

func (f *serviceFixture) registerConfirmed(t *testing.T, req *dto.RegisterRequest) *domain.User {
	t.Helper()

	ctx := context.Background()
	_, err := f.svc.Register(ctx, req)
	require.NoError(t, err)

	mail, ok := f.email.lastSent()
	require.True(t, ok)

	result := f.svc.ConfirmEmail(ctx, mail.token)
	require.True(t, result.Success)

	user, err := f.users.GetByEmail(ctx, mail.to)
	require.NoError(t, err)
	return user
}

func TestRegister_Success(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Register(ctx, validRegisterRequest())
	require.NoError(t, err)
	assert.Equal(t, "john@example.com", resp.Email)
	assert.Contains(t, resp.Message, "check your email")

	user, err := f.users.GetByEmail(ctx, "john@example.com")
	require.NoError(t, err)
	assert.False(t, user.EmailConfirmed)
	assert.NotNil(t, user.EmailToken)
	assert.False(t, user.IsAdmin)
	require.NotNil(t, user.ProfilePicture)
	assert.Contains(t, *user.ProfilePicture, "data:image/svg+xml;base64,")
	assert.NotEqual(t, "secret123", user.PasswordHash)

	mail, ok := f.email.lastSent()
	require.True(t, ok)
	assert.Equal(t, "confirmation", mail.kind)
	assert.Equal(t, *user.EmailToken, mail.token)
}

func TestRegister_TermsNotAccepted(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	req := validRegisterRequest()
	req.AcceptTerms = false

	_, err := f.svc.Register(ctx, req)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// The terms gate fires before anything is written.
	_, err = f.users.GetByEmail(ctx, req.Email)
	assert.Error(t, err)
	assert.Zero(t, f.email.count())
}

func TestRegister_NormalizesEmail(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	req := validRegisterRequest()
	req.Email = "  John@Example.COM "

	resp, err := f.svc.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "john@example.com", resp.Email)
}

func TestRegister_DuplicateConfirmed(t *testing.T) {
	f := newServiceFixture(t)
	f.registerConfirmed(t, validRegisterRequest())

	req := validRegisterRequest()
	req.Username = "janedoe"

	_, err := f.svc.Register(context.Background(), req)
	require.Error(t, err)

	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindConflict, e.Kind)
	assert.Equal(t, apperr.ConflictAccountExists, e.ConflictType)
}

func TestRegister_DuplicateUnconfirmed(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, validRegisterRequest())
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, validRegisterRequest())
	require.Error(t, err)

	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.ConflictEmailNotConfirmed, e.ConflictType)
	assert.Equal(t, "john@example.com", e.Email)
}

func TestLogin_EmailNotConfirmed(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, validRegisterRequest())
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "john@example.com", "secret123", "10.0.0.1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestLogin_Success(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user := f.registerConfirmed(t, validRegisterRequest())

	result, err := f.svc.Login(ctx, "john@example.com", "secret123", "10.0.0.1")
	require.NoError(t, err)
	require.NotNil(t, result.Auth)
	assert.Nil(t, result.Challenge)
	assert.NotEmpty(t, result.Auth.AccessToken)
	assert.NotEmpty(t, result.Auth.RefreshToken)
	assert.Equal(t, user.ID, result.Auth.User.ID)
	assert.Equal(t, "user", result.Auth.User.Role)

	count, err := f.tokenRepo.CountByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.registerConfirmed(t, validRegisterRequest())

	_, err := f.svc.Login(ctx, "john@example.com", "wrong", "10.0.0.1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
	// The message never says which part was wrong.
	assert.Equal(t, "Invalid email or password", err.Error())
}

func TestLogin_UnknownEmailSameError(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Login(context.Background(), "nobody@example.com", "whatever", "10.0.0.1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
	assert.Equal(t, "Invalid email or password", err.Error())
}

func TestLogin_LimiterBlocksAfterFiveFailures(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.registerConfirmed(t, validRegisterRequest())

	for i := 0; i < 5; i++ {
		_, err := f.svc.Login(ctx, "john@example.com", "wrong", "10.0.0.1")
		require.Error(t, err)
	}

	// Sixth attempt is rejected before the password is even checked.
	_, err := f.svc.Login(ctx, "john@example.com", "secret123", "10.0.0.1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(err))

	e, _ := apperr.As(err)
	assert.Greater(t, e.RetryAfter, time.Duration(0))
}

func TestLogin_LimiterIsPerIP(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user := f.registerConfirmed(t, validRegisterRequest())

	for i := 0; i < 5; i++ {
		_, _ = f.svc.Login(ctx, "john@example.com", "wrong", "10.0.0.1")
	}

	// Five failures also trip the account-scoped lock; lift it so only the
	// per-address bucket is in play.
	stored, err := f.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	stored.FailedLoginAttempts = 0
	stored.LockUntil = nil
	require.NoError(t, f.users.Update(ctx, stored))

	// The offending address stays blocked.
	_, err = f.svc.Login(ctx, "john@example.com", "secret123", "10.0.0.1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(err))

	// A different address still gets through.
	result, err := f.svc.Login(ctx, "john@example.com", "secret123", "192.168.1.7")
	require.NoError(t, err)
	require.NotNil(t, result.Auth)
}

func TestLogin_AccountLockAfterFiveFailures(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user := f.registerConfirmed(t, validRegisterRequest())

	// Spread the failures over different addresses so the per-pair limiter
	// never trips, isolating the account-scoped lock.
	ips := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5"}
	for _, ip := range ips {
		_, err := f.svc.Login(ctx, "john@example.com", "wrong", ip)
		require.Error(t, err)
	}

	stored, err := f.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.FailedLoginAttempts)
	require.NotNil(t, stored.LockUntil)
	assert.True(t, stored.LockUntil.After(time.Now()))

	_, err = f.svc.Login(ctx, "john@example.com", "secret123", "10.0.0.6")
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestLogin_SuccessForgivesFailures(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user := f.registerConfirmed(t, validRegisterRequest())

	for i := 0; i < 3; i++ {
		_, _ = f.svc.Login(ctx, "john@example.com", "wrong", "10.0.0.1")
	}

	_, err := f.svc.Login(ctx, "john@example.com", "secret123", "10.0.0.1")
	require.NoError(t, err)

	stored, err := f.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedLoginAttempts)
	assert.Nil(t, stored.LockUntil)

	// Limiter bucket is cleared too: five new failures are needed to block.
	check := f.limiter.CheckLogin("john@example.com", "10.0.0.1")
	assert.True(t, check.Allowed)
}

func TestRefreshTokens_RotatesAndInvalidatesOld(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user := f.registerConfirmed(t, validRegisterRequest())

	result, err := f.svc.Login(ctx, "john@example.com", "secret123", "10.0.0.1")
	require.NoError(t, err)
	first := result.Auth.RefreshToken

	refreshed, err := f.svc.RefreshTokens(ctx, first)
	require.NoError(t, err)
	assert.NotEqual(t, first, refreshed.RefreshToken)

	// The rotated-out token is single-use.
	_, err = f.svc.RefreshTokens(ctx, first)
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))

	// The ring still holds exactly one live token.
	count, err := f.tokenRepo.CountByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRefreshTokens_GarbageToken(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.RefreshTokens(context.Background(), "not-a-jwt")
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
}

func TestRefreshTokens_AccessTokenRejected(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.registerConfirmed(t, validRegisterRequest())
	result, err := f.svc.Login(ctx, "john@example.com", "secret123", "10.0.0.1")
	require.NoError(t, err)

	_, err = f.svc.RefreshTokens(ctx, result.Auth.AccessToken)
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
}

func TestTokenRing_CappedAtTen(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user := f.registerConfirmed(t, validRegisterRequest())

	for i := 0; i < 15; i++ {
		_, err := f.svc.Login(ctx, "john@example.com", "secret123", "10.0.0.1")
		require.NoError(t, err)
	}

	count, err := f.tokenRepo.CountByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MaxRefreshTokens, count)
}

func TestLogout_RemovesToken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user := f.registerConfirmed(t, validRegisterRequest())
	result, err := f.svc.Login(ctx, "john@example.com", "secret123", "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, user.ID, result.Auth.RefreshToken))

	_, err = f.svc.RefreshTokens(ctx, result.Auth.RefreshToken)
	require.Error(t, err)

	// Logging out the same token twice is harmless.
	require.NoError(t, f.svc.Logout(ctx, user.ID, result.Auth.RefreshToken))
}

func TestForgotPassword_UnknownEmailSilent(t *testing.T) {
	f := newServiceFixture(t)

	err := f.svc.ForgotPassword(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Zero(t, f.email.count())
}

func TestPasswordResetFlow(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user := f.registerConfirmed(t, validRegisterRequest())

	require.NoError(t, f.svc.ForgotPassword(ctx, "john@example.com"))

	mail, ok := f.email.lastSent()
	require.True(t, ok)
	assert.Equal(t, "reset", mail.kind)

	require.NoError(t, f.svc.ResetPassword(ctx, mail.token, "newsecret456"))

	// Old password stops working, new one logs in.
	_, err := f.svc.Login(ctx, "john@example.com", "secret123", "10.0.0.1")
	require.Error(t, err)
	result, err := f.svc.Login(ctx, "john@example.com", "newsecret456", "192.168.1.1")
	require.NoError(t, err)
	require.NotNil(t, result.Auth)

	// Token is consumed.
	err = f.svc.ResetPassword(ctx, mail.token, "another789")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	stored, err := f.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PasswordResetToken)
	assert.Nil(t, stored.PasswordResetExpires)
}

func TestResetPassword_ClearsAccountLock(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user := f.registerConfirmed(t, validRegisterRequest())

	locked, err := f.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	until := time.Now().Add(10 * time.Minute)
	locked.FailedLoginAttempts = 5
	locked.LockUntil = &until
	require.NoError(t, f.users.Update(ctx, locked))

	require.NoError(t, f.svc.ForgotPassword(ctx, "john@example.com"))
	mail, _ := f.email.lastSent()
	require.NoError(t, f.svc.ResetPassword(ctx, mail.token, "newsecret456"))

	stored, err := f.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedLoginAttempts)
	assert.Nil(t, stored.LockUntil)
}

func TestConfirmEmail_InvalidToken(t *testing.T) {
	f := newServiceFixture(t)

	result := f.svc.ConfirmEmail(context.Background(), "bogus")
	assert.False(t, result.Success)
	assert.Equal(t, "Invalid confirmation token", result.Message)
}

func TestConfirmEmail_TokenSingleUse(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, validRegisterRequest())
	require.NoError(t, err)
	mail, _ := f.email.lastSent()

	first := f.svc.ConfirmEmail(ctx, mail.token)
	assert.True(t, first.Success)

	// The token was cleared on success, so a replay no longer matches.
	second := f.svc.ConfirmEmail(ctx, mail.token)
	assert.False(t, second.Success)
}

func TestResendConfirmation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, validRegisterRequest())
	require.NoError(t, err)
	firstMail, _ := f.email.lastSent()

	resp, err := f.svc.ResendConfirmationEmail(ctx, "john@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Message)

	secondMail, _ := f.email.lastSent()
	assert.NotEqual(t, firstMail.token, secondMail.token)

	// The first token was replaced, only the latest one confirms.
	assert.False(t, f.svc.ConfirmEmail(ctx, firstMail.token).Success)
	assert.True(t, f.svc.ConfirmEmail(ctx, secondMail.token).Success)
}

func TestResendConfirmation_AlreadyConfirmed(t *testing.T) {
	f := newServiceFixture(t)

	f.registerConfirmed(t, validRegisterRequest())

	_, err := f.svc.ResendConfirmationEmail(context.Background(), "john@example.com")
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestResendConfirmation_RateLimited(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, validRegisterRequest())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := f.svc.ResendConfirmationEmail(ctx, "john@example.com")
		require.NoError(t, err)
	}

	_, err = f.svc.ResendConfirmationEmail(ctx, "john@example.com")
	require.Error(t, err)
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(err))

	e, _ := apperr.As(err)
	assert.Greater(t, e.RetryAfter, time.Duration(0))
}

func TestResendConfirmation_UnknownUser(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.ResendConfirmationEmail(context.Background(), "nobody@example.com")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUpdateUser_EmailChangeUnconfirms(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user := f.registerConfirmed(t, validRegisterRequest())

	newEmail := "john.new@example.com"
	resp, err := f.svc.UpdateUser(ctx, user.ID, &dto.UpdateUserRequest{Email: &newEmail})
	require.NoError(t, err)
	assert.Equal(t, newEmail, resp.User.Email)
	assert.False(t, resp.User.EmailConfirmed)

	mail, ok := f.email.lastSent()
	require.True(t, ok)
	assert.Equal(t, newEmail, mail.to)
	assert.Equal(t, "confirmation", mail.kind)
}

func TestUpdateUser_UsernameTaken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user := f.registerConfirmed(t, validRegisterRequest())

	other := validRegisterRequest()
	other.Username = "janedoe"
	other.Email = "jane@example.com"
	_, err := f.svc.Register(ctx, other)
	require.NoError(t, err)

	taken := "janedoe"
	_, err = f.svc.UpdateUser(ctx, user.ID, &dto.UpdateUserRequest{Username: &taken})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestDeleteUserByAdmin_SelfRejected(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	admin := f.registerConfirmed(t, validRegisterRequest())

	err := f.svc.DeleteUserByAdmin(ctx, admin.ID, admin.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// Nothing was deleted.
	_, err = f.users.GetByID(ctx, admin.ID)
	assert.NoError(t, err)
}

func TestDeleteUserByAdmin_UnknownTarget(t *testing.T) {
	f := newServiceFixture(t)

	admin := f.registerConfirmed(t, validRegisterRequest())

	err := f.svc.DeleteUserByAdmin(context.Background(), admin.ID, "missing-id")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestValidateToken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user := f.registerConfirmed(t, validRegisterRequest())
	result, err := f.svc.Login(ctx, "john@example.com", "secret123", "10.0.0.1")
	require.NoError(t, err)

	claims, err := f.svc.ValidateToken(ctx, result.Auth.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "john@example.com", claims.Email)
	assert.False(t, claims.IsAdmin)

	// Refresh tokens are not session credentials.
	_, err = f.svc.ValidateToken(ctx, result.Auth.RefreshToken)
	require.Error(t, err)
}
