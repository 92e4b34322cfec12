package acceptance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tahamediouni1/RebiiProject/internal/dto"
)

func registerRequest(username, email string) dto.RegisterRequest {
	return dto.RegisterRequest{
		Username:    username,
		Email:       email,
		Password:    "Password123",
		FirstName:   "Test",
		LastName:    "Person",
		Birthdate:   "1995-04-12",
		AcceptTerms: true,
	}
}

func (s *Suite) postJSON(path string, payload any) *http.Response {
	body, err := json.Marshal(payload)
	s.Require().NoError(err)

	resp, err := http.Post(s.App.BaseURL+path, "application/json", bytes.NewBuffer(body))
	s.Require().NoError(err)
	return resp
}

// registerAndConfirm walks a user through registration and the emailed
// confirmation link, returning nothing; the account is ready to log in.
func (s *Suite) registerAndConfirm(username, email string) {
	resp := s.postJSON("/api/v1/auth/register", registerRequest(username, email))
	defer resp.Body.Close()
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	token := s.App.Emails.ConfirmationToken(email)
	s.Require().NotEmpty(token, "confirmation email should have been sent")

	confirmResp, err := http.Get(s.App.BaseURL + "/api/v1/auth/confirm-email/" + token)
	s.Require().NoError(err)
	defer confirmResp.Body.Close()
	s.Require().Equal(http.StatusOK, confirmResp.StatusCode)
}

func (s *Suite) login(email, password string) *http.Response {
	return s.postJSON("/api/v1/auth/login", dto.LoginRequest{
		Email:    email,
		Password: password,
	})
}

func (s *Suite) TestRegister_Success() {
	resp := s.postJSON("/api/v1/auth/register", registerRequest("johndoe", "john@example.com"))
	defer resp.Body.Close()

	s.Equal(http.StatusCreated, resp.StatusCode)

	var regResp dto.RegistrationResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&regResp))
	s.Equal("john@example.com", regResp.Email)
	s.NotEmpty(regResp.Message)

	s.NotEmpty(s.App.Emails.ConfirmationToken("john@example.com"))
}

func (s *Suite) TestRegister_DuplicateUnconfirmed() {
	resp1 := s.postJSON("/api/v1/auth/register", registerRequest("johndoe", "dup@example.com"))
	resp1.Body.Close()

	resp2 := s.postJSON("/api/v1/auth/register", registerRequest("johndoe", "dup@example.com"))
	defer resp2.Body.Close()

	s.Equal(http.StatusConflict, resp2.StatusCode)

	var errResp dto.ErrorResponse
	s.Require().NoError(json.NewDecoder(resp2.Body).Decode(&errResp))
	s.Equal("Conflict", errResp.Error)
	s.Equal("EMAIL_NOT_CONFIRMED", errResp.Type)
	s.Equal("dup@example.com", errResp.Email)
}

func (s *Suite) TestRegister_DuplicateConfirmed() {
	s.registerAndConfirm("johndoe", "dup2@example.com")

	resp := s.postJSON("/api/v1/auth/register", registerRequest("someoneelse", "dup2@example.com"))
	defer resp.Body.Close()

	s.Equal(http.StatusConflict, resp.StatusCode)

	var errResp dto.ErrorResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&errResp))
	s.Equal("ACCOUNT_EXISTS", errResp.Type)
}

func (s *Suite) TestRegister_ShortPassword() {
	req := registerRequest("johndoe", "short@example.com")
	req.Password = "12345"

	resp := s.postJSON("/api/v1/auth/register", req)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestLogin_RequiresConfirmedEmail() {
	resp := s.postJSON("/api/v1/auth/register", registerRequest("johndoe", "pending@example.com"))
	resp.Body.Close()

	loginResp := s.login("pending@example.com", "Password123")
	defer loginResp.Body.Close()

	s.Equal(http.StatusForbidden, loginResp.StatusCode)
}

func (s *Suite) TestLogin_Success() {
	s.registerAndConfirm("johndoe", "login@example.com")

	resp := s.login("login@example.com", "Password123")
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var authResp dto.AuthResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&authResp))
	s.NotEmpty(authResp.AccessToken)
	s.NotEmpty(authResp.RefreshToken)
	s.NotEmpty(authResp.AccessTokenExpiresAt)
	s.Equal("login@example.com", authResp.User.Email)
	s.Equal("johndoe", authResp.User.Username)
	s.False(authResp.User.IsAdmin)
}

func (s *Suite) TestLogin_WrongPassword() {
	s.registerAndConfirm("johndoe", "wrongpass@example.com")

	resp := s.login("wrongpass@example.com", "NotThePassword")
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	var errResp dto.ErrorResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&errResp))
	s.Equal("Unauthorized", errResp.Error)
	s.Equal("Invalid email or password", errResp.Message)
}

func (s *Suite) TestLogin_UnknownEmail() {
	resp := s.login("nobody@example.com", "Password123")
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	var errResp dto.ErrorResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&errResp))
	// The message never says whether the account exists.
	s.Equal("Invalid email or password", errResp.Message)
}

func (s *Suite) TestConfirmEmail_InvalidToken() {
	resp, err := http.Get(s.App.BaseURL + "/api/v1/auth/confirm-email/not-a-real-token")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)

	var confirmResp dto.ConfirmEmailResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&confirmResp))
	s.False(confirmResp.Success)
}

func (s *Suite) TestConfirmEmail_TokenIsSingleUse() {
	resp := s.postJSON("/api/v1/auth/register", registerRequest("johndoe", "once@example.com"))
	resp.Body.Close()

	token := s.App.Emails.ConfirmationToken("once@example.com")
	s.Require().NotEmpty(token)

	first, err := http.Get(s.App.BaseURL + "/api/v1/auth/confirm-email/" + token)
	s.Require().NoError(err)
	first.Body.Close()
	s.Equal(http.StatusOK, first.StatusCode)

	second, err := http.Get(s.App.BaseURL + "/api/v1/auth/confirm-email/" + token)
	s.Require().NoError(err)
	defer second.Body.Close()
	s.Equal(http.StatusBadRequest, second.StatusCode)
}

func (s *Suite) TestRefresh_RotatesToken() {
	s.registerAndConfirm("johndoe", "refresh@example.com")

	loginResp := s.login("refresh@example.com", "Password123")
	defer loginResp.Body.Close()

	var session dto.AuthResponse
	s.Require().NoError(json.NewDecoder(loginResp.Body).Decode(&session))

	refreshResp := s.postJSON("/api/v1/auth/refresh", dto.RefreshTokenRequest{RefreshToken: session.RefreshToken})
	defer refreshResp.Body.Close()
	s.Equal(http.StatusOK, refreshResp.StatusCode)

	var rotated dto.AuthResponse
	s.Require().NoError(json.NewDecoder(refreshResp.Body).Decode(&rotated))
	s.NotEmpty(rotated.AccessToken)
	s.NotEqual(session.RefreshToken, rotated.RefreshToken)

	// The consumed token no longer refreshes.
	replayResp := s.postJSON("/api/v1/auth/refresh", dto.RefreshTokenRequest{RefreshToken: session.RefreshToken})
	defer replayResp.Body.Close()
	s.Equal(http.StatusUnauthorized, replayResp.StatusCode)

	// The rotated one still does.
	nextResp := s.postJSON("/api/v1/auth/refresh", dto.RefreshTokenRequest{RefreshToken: rotated.RefreshToken})
	defer nextResp.Body.Close()
	s.Equal(http.StatusOK, nextResp.StatusCode)
}

func (s *Suite) TestRefresh_GarbageToken() {
	resp := s.postJSON("/api/v1/auth/refresh", dto.RefreshTokenRequest{RefreshToken: "garbage"})
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestLogout_RevokesRefreshToken() {
	s.registerAndConfirm("johndoe", "logout@example.com")

	loginResp := s.login("logout@example.com", "Password123")
	defer loginResp.Body.Close()

	var session dto.AuthResponse
	s.Require().NoError(json.NewDecoder(loginResp.Body).Decode(&session))

	body, _ := json.Marshal(dto.LogoutRequest{RefreshToken: session.RefreshToken})
	req, _ := http.NewRequest("POST", s.App.BaseURL+"/api/v1/auth/logout", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", session.AccessToken))

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	var successResp dto.SuccessResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&successResp))
	s.Equal("Logged out successfully", successResp.Message)

	refreshResp := s.postJSON("/api/v1/auth/refresh", dto.RefreshTokenRequest{RefreshToken: session.RefreshToken})
	defer refreshResp.Body.Close()
	s.Equal(http.StatusUnauthorized, refreshResp.StatusCode)
}

func (s *Suite) TestGetMe_Success() {
	s.registerAndConfirm("johndoe", "getme@example.com")

	loginResp := s.login("getme@example.com", "Password123")
	defer loginResp.Body.Close()

	var session dto.AuthResponse
	s.Require().NoError(json.NewDecoder(loginResp.Body).Decode(&session))

	req, _ := http.NewRequest("GET", s.App.BaseURL+"/api/v1/users/me", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", session.AccessToken))

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var profile dto.PrivateUserResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&profile))
	s.Equal("getme@example.com", profile.User.Email)
	s.Equal("johndoe", profile.User.Username)
	s.True(profile.User.EmailConfirmed)
}

func (s *Suite) TestGetMe_NoToken() {
	resp, err := http.Get(s.App.BaseURL + "/api/v1/users/me")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestGetMe_InvalidToken() {
	req, _ := http.NewRequest("GET", s.App.BaseURL+"/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestPasswordResetFlow() {
	s.registerAndConfirm("johndoe", "reset@example.com")

	forgotResp := s.postJSON("/api/v1/auth/forgot-password", dto.ForgotPasswordRequest{Email: "reset@example.com"})
	defer forgotResp.Body.Close()
	s.Equal(http.StatusOK, forgotResp.StatusCode)

	token := s.App.Emails.ResetToken("reset@example.com")
	s.Require().NotEmpty(token, "reset email should have been sent")

	resetResp := s.postJSON("/api/v1/auth/reset-password", dto.ResetPasswordRequest{
		Token:       token,
		NewPassword: "BrandNewPass456",
	})
	defer resetResp.Body.Close()
	s.Equal(http.StatusOK, resetResp.StatusCode)

	oldResp := s.login("reset@example.com", "Password123")
	defer oldResp.Body.Close()
	s.Equal(http.StatusUnauthorized, oldResp.StatusCode)

	newResp := s.login("reset@example.com", "BrandNewPass456")
	defer newResp.Body.Close()
	s.Equal(http.StatusOK, newResp.StatusCode)
}

func (s *Suite) TestForgotPassword_UnknownEmailSilent() {
	resp := s.postJSON("/api/v1/auth/forgot-password", dto.ForgotPasswordRequest{Email: "ghost@example.com"})
	defer resp.Body.Close()

	// Same answer whether or not the account exists.
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *Suite) TestResendConfirmation_ReplacesToken() {
	resp := s.postJSON("/api/v1/auth/register", registerRequest("johndoe", "resend@example.com"))
	resp.Body.Close()

	oldToken := s.App.Emails.ConfirmationToken("resend@example.com")
	s.Require().NotEmpty(oldToken)

	resendResp := s.postJSON("/api/v1/auth/resend-confirmation", dto.ResendConfirmationRequest{Email: "resend@example.com"})
	defer resendResp.Body.Close()
	s.Equal(http.StatusOK, resendResp.StatusCode)

	newToken := s.App.Emails.ConfirmationToken("resend@example.com")
	s.Require().NotEmpty(newToken)
	s.NotEqual(oldToken, newToken)

	// Only the latest token confirms.
	staleResp, err := http.Get(s.App.BaseURL + "/api/v1/auth/confirm-email/" + oldToken)
	s.Require().NoError(err)
	staleResp.Body.Close()
	s.Equal(http.StatusBadRequest, staleResp.StatusCode)

	freshResp, err := http.Get(s.App.BaseURL + "/api/v1/auth/confirm-email/" + newToken)
	s.Require().NoError(err)
	defer freshResp.Body.Close()
	s.Equal(http.StatusOK, freshResp.StatusCode)
}

func (s *Suite) TestRateLimitHeaders() {
	resp := s.postJSON("/api/v1/auth/forgot-password", dto.ForgotPasswordRequest{Email: "headers@example.com"})
	defer resp.Body.Close()

	s.NotEmpty(resp.Header.Get("X-RateLimit-Limit"))
	s.NotEmpty(resp.Header.Get("X-RateLimit-Remaining"))
}

func (s *Suite) TestAdminEndpoints_RequireAdmin() {
	s.registerAndConfirm("johndoe", "plain@example.com")

	loginResp := s.login("plain@example.com", "Password123")
	defer loginResp.Body.Close()

	var session dto.AuthResponse
	s.Require().NoError(json.NewDecoder(loginResp.Body).Decode(&session))

	req, _ := http.NewRequest("GET", s.App.BaseURL+"/api/v1/admin/users", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", session.AccessToken))

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusForbidden, resp.StatusCode)
}
