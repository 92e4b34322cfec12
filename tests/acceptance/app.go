package acceptance

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/tahamediouni1/RebiiProject/internal/config"
	"github.com/tahamediouni1/RebiiProject/internal/handler"
	"github.com/tahamediouni1/RebiiProject/internal/repository"
	"github.com/tahamediouni1/RebiiProject/internal/service"
	"github.com/tahamediouni1/RebiiProject/internal/utils"
	"github.com/tahamediouni1/RebiiProject/pkg/database"
	"github.com/tahamediouni1/RebiiProject/pkg/observability"
)

// capturingEmailSender stands in for SMTP delivery and keeps the last token
// sent to each recipient so tests can walk the confirmation and reset flows.
type capturingEmailSender struct {
	mu                 sync.Mutex
	confirmationTokens map[string]string
	resetTokens        map[string]string
}

func newCapturingEmailSender() *capturingEmailSender {
	return &capturingEmailSender{
		confirmationTokens: make(map[string]string),
		resetTokens:        make(map[string]string),
	}
}

func (s *capturingEmailSender) SendConfirmationEmail(_ context.Context, to, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmationTokens[to] = token
	return nil
}

func (s *capturingEmailSender) SendPasswordResetEmail(_ context.Context, to, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetTokens[to] = token
	return nil
}

func (s *capturingEmailSender) ConfirmationToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmationTokens[email]
}

func (s *capturingEmailSender) ResetToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetTokens[email]
}

// TestApp is a fully wired application instance listening on a random port,
// with email delivery captured in memory instead of going over SMTP.
type TestApp struct {
	Config       *config.Config
	Router       *gin.Engine
	Server       *http.Server
	Listener     net.Listener
	BaseURL      string
	AuthService  service.AuthService
	Repositories *repository.Repositories
	TokenManager *utils.TokenManager
	Limiter      *service.AttemptLimiter
	Emails       *capturingEmailSender
	Logger       *zap.Logger
	Postgres     *database.Postgres
	Redis        *database.Redis
}

func NewTestApp(postgres *database.Postgres, redis *database.Redis) (*TestApp, error) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:         "localhost",
			Port:         "0",
			ReadTimeout:  config.Duration{Duration: 15 * time.Second},
			WriteTimeout: config.Duration{Duration: 15 * time.Second},
		},
		JWT: config.JWTConfig{
			Secret:             "test-secret-key-that-is-at-least-32-characters-long",
			AccessTokenExpiry:  config.Duration{Duration: 15 * time.Minute},
			RefreshTokenExpiry: config.Duration{Duration: 7 * 24 * time.Hour},
			TempTokenExpiry:    config.Duration{Duration: 5 * time.Minute},
		},
		Security: config.SecurityConfig{
			BCryptCost:        4,
			RateLimitRequests: 100,
			RateLimitWindow:   config.Duration{Duration: 1 * time.Minute},
		},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		},
		App: config.AppConfig{
			Name:        "Rebii",
			FrontendURL: "http://localhost:3000",
			APIBaseURL:  "http://localhost:8080",
		},
		TwoFactor: config.TwoFactorConfig{Issuer: "Rebii"},
		Env:       "test",
	}

	gin.SetMode(gin.TestMode)

	logger, err := observability.InitLogger("test")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	_, metricsHandler, err := observability.InitTelemetry("rebii-accounts-test")
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	repos := repository.NewRepositories(postgres)
	tokenManager := utils.NewTokenManager(
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpiry.Duration,
		cfg.JWT.RefreshTokenExpiry.Duration,
		cfg.JWT.TempTokenExpiry.Duration,
	)

	emails := newCapturingEmailSender()
	attemptLimiter := service.NewAttemptLimiter()
	attemptLimiter.Start()
	requestLimiter := service.NewRequestRateLimiter(redis)

	authService := service.NewAuthService(
		repos.User,
		repos.Token,
		tokenManager,
		attemptLimiter,
		emails,
		nil, // Google OAuth stays off in tests
		logger,
		cfg.Security.BCryptCost,
		cfg.TwoFactor.Issuer,
	)

	authHandler := handler.NewAuthHandler(authService, cfg.App.FrontendURL, logger)

	router := gin.New()
	router.Use(otelgin.Middleware("rebii-accounts-test"))
	router.Use(handler.LoggerMiddleware(logger))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))
	setupTestRoutes(router, cfg, authHandler, authService, requestLimiter, metricsHandler)

	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		attemptLimiter.Stop()
		logger.Sync()
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	addr := listener.Addr().(*net.TCPAddr)
	baseURL := fmt.Sprintf("http://localhost:%d", addr.Port)

	srv := &http.Server{
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	app := &TestApp{
		Config:       cfg,
		Router:       router,
		Server:       srv,
		Listener:     listener,
		BaseURL:      baseURL,
		AuthService:  authService,
		Repositories: repos,
		TokenManager: tokenManager,
		Limiter:      attemptLimiter,
		Emails:       emails,
		Logger:       logger,
		Postgres:     postgres,
		Redis:        redis,
	}

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("Test server stopped", zap.Error(err))
		}
	}()
	time.Sleep(100 * time.Millisecond)

	return app, nil
}

func (app *TestApp) Close() error {
	app.Limiter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	if app.Logger != nil {
		app.Logger.Sync()
	}

	return nil
}

func setupTestRoutes(
	router *gin.Engine,
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	authService service.AuthService,
	requestLimiter *service.RequestRateLimiter,
	metricsHandler http.Handler,
) {
	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "pass",
			"service": "rebii-accounts",
		})
	})

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
