package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/tahamediouni1/RebiiProject/internal/config"
	"github.com/tahamediouni1/RebiiProject/internal/email"
	"github.com/tahamediouni1/RebiiProject/internal/handler"
	"github.com/tahamediouni1/RebiiProject/internal/repository"
	"github.com/tahamediouni1/RebiiProject/internal/service"
	"github.com/tahamediouni1/RebiiProject/internal/utils"
	"github.com/tahamediouni1/RebiiProject/pkg/observability"
)

const (
	// serviceName identifies this service in traces, metrics and health
	// payloads.
	serviceName = "rebii-accounts"

	shutdownTimeout      = 5 * time.Second
	tokenCleanupInterval = time.Hour
)

type App struct {
	infra   Infrastructure
	config  *config.Config
	router  *gin.Engine
	server  *http.Server
	limiter *service.AttemptLimiter
	tokens  repository.TokenRepository
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	repos := repository.NewRepositories(infra.Postgres())

	tokenManager := utils.NewTokenManager(
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpiry.Duration,
		cfg.JWT.RefreshTokenExpiry.Duration,
		cfg.JWT.TempTokenExpiry.Duration,
	)

	emailService, err := email.NewService(cfg.SMTP, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize email service: %w", err)
	}

	var googleProvider *service.GoogleProvider
	if cfg.Google.Enabled() {
		googleProvider = service.NewGoogleProvider(cfg.Google, cfg.App.FrontendURL)
	}

	attemptLimiter := service.NewAttemptLimiter()
	requestLimiter := service.NewRequestRateLimiter(infra.Redis())
	healthChecker := NewHealthChecker(infra)

	authService := service.NewAuthService(
		repos.User,
		repos.Token,
		tokenManager,
		attemptLimiter,
		emailService,
		googleProvider,
		infra.Logger(),
		cfg.Security.BCryptCost,
		cfg.TwoFactor.Issuer,
	)

	authHandler := handler.NewAuthHandler(authService, cfg.App.FrontendURL, infra.Logger())

	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))
	router.Use(handler.LoggerMiddleware(infra.Logger()))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	setupRoutes(router, cfg, authHandler, authService, requestLimiter, healthChecker, infra.MetricsHandler())

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:   infra,
		config:  cfg,
		router:  router,
		server:  srv,
		limiter: attemptLimiter,
		tokens:  repos.Token,
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	authService service.AuthService,
	requestLimiter *service.RequestRateLimiter,
	healthChecker *HealthChecker,
	metricsHandler http.Handler,
) {
	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", healthChecker.Handler)

	throttled := handler.RateLimitMiddleware(requestLimiter,
		cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow.Duration, handler.IPBasedKey)
	authed := handler.AuthMiddleware(authService)

	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", throttled, authHandler.Register)
			auth.POST("/login", throttled, authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", authed, authHandler.Logout)

			auth.POST("/2fa/login", throttled, authHandler.TwoFactorLogin)
			auth.POST("/2fa/setup", authed, authHandler.SetupTwoFactor)
			auth.POST("/2fa/verify", authed, authHandler.VerifyTwoFactor)
			auth.POST("/2fa/disable", authed, authHandler.DisableTwoFactor)

			auth.POST("/forgot-password", throttled, authHandler.ForgotPassword)
			auth.POST("/reset-password", throttled, authHandler.ResetPassword)
			auth.GET("/confirm-email/:token", authHandler.ConfirmEmail)
			auth.POST("/resend-confirmation", throttled, authHandler.ResendConfirmation)

			auth.GET("/google", authHandler.GoogleAuth)
			auth.GET("/google/callback", authHandler.GoogleCallback)
		}

		users := api.Group("/users", authed)
		{
			users.GET("/me", authHandler.GetMe)
			users.PATCH("/me", authHandler.UpdateMe)
			users.DELETE("/me", authHandler.DeleteMe)
			users.GET("/:id", authHandler.GetUser)
		}

		admin := api.Group("/admin", authed, handler.AdminMiddleware())
		{
			admin.GET("/users", authHandler.ListUsers)
			admin.DELETE("/users/:id", authHandler.AdminDeleteUser)
		}
	}
}

// cleanupExpiredTokens periodically drops refresh tokens past their expiry
// so the rings do not accumulate dead rows between logins.
func (a *App) cleanupExpiredTokens(ctx context.Context) {
	ticker := time.NewTicker(tokenCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.tokens.DeleteExpired(ctx); err != nil {
				a.infra.Logger().Warn("Failed to delete expired refresh tokens", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	a.limiter.Start()
	go a.cleanupExpiredTokens(ctx)

	errChan := make(chan error, 1)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	if err := a.Shutdown(); err != nil {
		a.infra.Logger().Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	a.limiter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		errs <- a.server.Shutdown(ctx)
	}()

	go func() {
		errs <- a.infra.Shutdown(ctx)
	}()

	err := errors.Join(<-errs, <-errs)
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
