package handler

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tahamediouni1/RebiiProject/internal/dto"
	"github.com/tahamediouni1/RebiiProject/internal/service"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService service.AuthService
	frontendURL string
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService service.AuthService, frontendURL string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// Register handles user registration
// @Summary Register a new user
// @Description Create an account and send a confirmation email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.RegisterRequest true "Registration request"
// @Success 201 {object} dto.RegistrationResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	response, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// Login handles credential login
// @Summary Login user
// @Description Authenticate with email and password; 2FA accounts receive a challenge
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login request"
// @Success 200 {object} dto.AuthResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}

	if result.Challenge != nil {
		c.JSON(http.StatusOK, result.Challenge)
		return
	}
	c.JSON(http.StatusOK, result.Auth)
}

// TwoFactorLogin completes a challenged login with a TOTP code
// @Summary Complete two-factor login
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.TwoFactorLoginRequest true "Temp token and code"
// @Success 200 {object} dto.AuthResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /auth/2fa/login [post]
func (h *AuthHandler) TwoFactorLogin(c *gin.Context) {
	var req dto.TwoFactorLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	auth, err := h.authService.TwoFactorLogin(c.Request.Context(), req.TempToken, req.Code, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, auth)
}

// SetupTwoFactor starts 2FA enrollment for the current user
// @Summary Start two-factor enrollment
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.TwoFactorSetupResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /auth/2fa/setup [post]
func (h *AuthHandler) SetupTwoFactor(c *gin.Context) {
	response, err := h.authService.SetupTwoFactor(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// VerifyTwoFactor completes 2FA enrollment
// @Summary Verify the enrollment code and enable two-factor auth
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.TwoFactorVerifyRequest true "TOTP code"
// @Success 200 {object} dto.SuccessResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /auth/2fa/verify [post]
func (h *AuthHandler) VerifyTwoFactor(c *gin.Context) {
	var req dto.TwoFactorVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	ok, err := h.authService.VerifyTwoFactor(c.Request.Context(), c.GetString("user_id"), req.Code, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad request",
			Message: "Invalid two-factor code",
		})
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Two-factor authentication enabled"})
}

// DisableTwoFactor turns 2FA off after password re-authentication
// @Summary Disable two-factor auth
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.DisableTwoFactorRequest true "Current password"
// @Success 200 {object} dto.SuccessResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/2fa/disable [post]
func (h *AuthHandler) DisableTwoFactor(c *gin.Context) {
	var req dto.DisableTwoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	if err := h.authService.DisableTwoFactor(c.Request.Context(), c.GetString("user_id"), req.Password); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Two-factor authentication disabled"})
}

// Refresh rotates a refresh token for a new pair
// @Summary Refresh tokens
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.RefreshTokenRequest true "Refresh token"
// @Success 200 {object} dto.AuthResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	response, err := h.authService.RefreshTokens(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Logout invalidates one refresh token
// @Summary Logout user
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.LogoutRequest true "Refresh token to revoke"
// @Success 200 {object} dto.SuccessResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var req dto.LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	if err := h.authService.Logout(c.Request.Context(), c.GetString("user_id"), req.RefreshToken); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Logged out successfully"})
}

// ForgotPassword starts the password reset flow
// @Summary Request a password reset email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.ForgotPasswordRequest true "Account email"
// @Success 200 {object} dto.SuccessResponse
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req dto.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	if err := h.authService.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		writeError(c, err)
		return
	}
	// Same answer whether or not the account exists.
	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "If an account with that email exists, a password reset link has been sent",
	})
}

// ResetPassword completes the password reset flow
// @Summary Reset the password with a token from the email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.ResetPasswordRequest true "Reset token and new password"
// @Success 200 {object} dto.SuccessResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Password has been reset successfully"})
}

// ConfirmEmail handles the confirmation link from the email
// @Summary Confirm an email address
// @Tags auth
// @Produce json
// @Param token path string true "Confirmation token"
// @Success 200 {object} dto.ConfirmEmailResponse
// @Failure 400 {object} dto.ConfirmEmailResponse
// @Router /auth/confirm-email/{token} [get]
func (h *AuthHandler) ConfirmEmail(c *gin.Context) {
	result := h.authService.ConfirmEmail(c.Request.Context(), c.Param("token"))
	if !result.Success {
		c.JSON(http.StatusBadRequest, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ResendConfirmation sends a fresh confirmation email
// @Summary Resend the confirmation email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.ResendConfirmationRequest true "Account email"
// @Success 200 {object} dto.SuccessResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /auth/resend-confirmation [post]
func (h *AuthHandler) ResendConfirmation(c *gin.Context) {
	var req dto.ResendConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	response, err := h.authService.ResendConfirmationEmail(c.Request.Context(), req.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// GoogleAuth redirects the browser to the Google consent screen
// @Summary Start Google sign-in
// @Tags auth
// @Param mode query string false "login or register"
// @Param lang query string false "Frontend language"
// @Param redirectUri query string false "Frontend return URL"
// @Success 302
// @Router /auth/google [get]
func (h *AuthHandler) GoogleAuth(c *gin.Context) {
	authURL, err := h.authService.GetGoogleAuthURL(service.GoogleAuthParams{
		Mode:        c.Query("mode"),
		Lang:        c.Query("lang"),
		RedirectURI: c.Query("redirectUri"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// GoogleCallback completes the OAuth round-trip. Errors send the browser
// back to the frontend login page instead of rendering JSON, since the
// caller here is a redirect, not an API client.
// @Summary Google OAuth callback
// @Tags auth
// @Param code query string true "Authorization code"
// @Param state query string true "Opaque state"
// @Success 302
// @Router /auth/google/callback [get]
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")

	if errParam := c.Query("error"); errParam != "" || code == "" {
		h.redirectLoginError(c, "google_auth_cancelled")
		return
	}

	redirect, err := h.authService.HandleGoogleCallback(c.Request.Context(), code, state)
	if err != nil {
		h.logger.Warn("google callback failed", zap.Error(err))
		h.redirectLoginError(c, "google_auth_failed")
		return
	}
	c.Redirect(http.StatusFound, redirect)
}

func (h *AuthHandler) redirectLoginError(c *gin.Context, reason string) {
	c.Redirect(http.StatusFound,
		h.frontendURL+"/login?error="+url.QueryEscape(reason))
}

// GetMe returns the current user's profile
// @Summary Get current user profile
// @Tags users
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.PrivateUserResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /users/me [get]
func (h *AuthHandler) GetMe(c *gin.Context) {
	response, err := h.authService.FetchUser(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// UpdateMe applies a partial update to the current user's profile
// @Summary Update current user profile
// @Tags users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.UpdateUserRequest true "Fields to update"
// @Success 200 {object} dto.PrivateUserResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /users/me [patch]
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	var req dto.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	response, err := h.authService.UpdateUser(c.Request.Context(), c.GetString("user_id"), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// DeleteMe removes the current user's account
// @Summary Delete current user account
// @Tags users
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.SuccessResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /users/me [delete]
func (h *AuthHandler) DeleteMe(c *gin.Context) {
	if err := h.authService.DeleteUser(c.Request.Context(), c.GetString("user_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Account deleted successfully"})
}

// GetUser returns the public profile of any account
// @Summary Get a user's public profile
// @Tags users
// @Security BearerAuth
// @Produce json
// @Param id path string true "User id"
// @Success 200 {object} dto.UserResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /users/{id} [get]
func (h *AuthHandler) GetUser(c *gin.Context) {
	response, err := h.authService.FetchUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// ListUsers returns every account for the admin panel
// @Summary List all users
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.UsersListResponse
// @Failure 403 {object} dto.ErrorResponse
// @Router /admin/users [get]
func (h *AuthHandler) ListUsers(c *gin.Context) {
	response, err := h.authService.FetchAllUsers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// AdminDeleteUser removes another user's account
// @Summary Delete a user as admin
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "User id"
// @Success 200 {object} dto.SuccessResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /admin/users/{id} [delete]
func (h *AuthHandler) AdminDeleteUser(c *gin.Context) {
	if err := h.authService.DeleteUserByAdmin(c.Request.Context(), c.GetString("user_id"), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "User deleted successfully"})
}
