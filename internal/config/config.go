package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Server    ServerConfig    `env:",prefix=SERVER_"`
	Postgres  PostgresConfig  `env:",prefix=POSTGRES_"`
	Redis     RedisConfig     `env:",prefix=REDIS_"`
	JWT       JWTConfig       `env:",prefix=JWT_"`
	Google    GoogleConfig    `env:",prefix=GOOGLE_"`
	SMTP      SMTPConfig      `env:",prefix=SMTP_"`
	Security  SecurityConfig  `env:",prefix="`
	CORS      CORSConfig      `env:",prefix=CORS_"`
	App       AppConfig       `env:",prefix="`
	TwoFactor TwoFactorConfig `env:",prefix=TWO_FACTOR_"`
	Env       string          `env:"ENV,default=development"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=15s"`
}

type PostgresConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=rebii"`
	Password string `env:"PASSWORD,default=rebii_password"`
	DBName   string `env:"DB,default=rebii_accounts"`
	SSLMode  string `env:"SSLMODE,default=disable"`
	// MigrationsURL points at the migration source; empty skips migrations
	// at startup.
	MigrationsURL string `env:"MIGRATIONS_URL,default=file://migrations"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

type JWTConfig struct {
	Secret             string   `env:"SECRET,required"`
	AccessTokenExpiry  Duration `env:"ACCESS_TOKEN_EXPIRY,default=24h"`
	RefreshTokenExpiry Duration `env:"REFRESH_TOKEN_EXPIRY,default=7d"`
	TempTokenExpiry    Duration `env:"TEMP_TOKEN_EXPIRY,default=5m"`
}

// GoogleConfig holds the Google OAuth client settings. The flow is disabled
// when all fields are empty; when any is set, ClientID, ClientSecret and
// CallbackURL must all be present.
type GoogleConfig struct {
	ClientID         string `env:"CLIENT_ID,default="`
	ClientSecret     string `env:"CLIENT_SECRET,default="`
	CallbackURL      string `env:"CALLBACK_URL,default="`
	AllowInsecureTLS bool   `env:"OAUTH_ALLOW_INSECURE_TLS,default=false"`
}

type SMTPConfig struct {
	Host     string `env:"HOST,default=smtp.gmail.com"`
	Port     int    `env:"PORT,default=587"`
	Username string `env:"USERNAME,required"`
	Password string `env:"PASSWORD,required"`
}

type SecurityConfig struct {
	BCryptCost        int      `env:"BCRYPT_COST,default=10"`
	RateLimitRequests int      `env:"RATE_LIMIT_REQUESTS,default=30"`
	RateLimitWindow   Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization"`
}

type AppConfig struct {
	Name        string `env:"APP_NAME,default=Rebii"`
	FrontendURL string `env:"FRONTEND_URL,required"`
	APIBaseURL  string `env:"API_BASE_URL,default=http://localhost:8080"`
}

type TwoFactorConfig struct {
	Issuer string `env:"ISSUER,default="`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Enabled reports whether the Google OAuth flow is fully configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.CallbackURL != ""
}

// Load loads configuration from environment variables and validates it once,
// failing fast at startup instead of checking settings per call.
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if len(config.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	// A partially configured Google client is a deployment mistake,
	// not a disabled feature.
	if (config.Google.ClientID != "" || config.Google.ClientSecret != "" || config.Google.CallbackURL != "") &&
		!config.Google.Enabled() {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_CALLBACK_URL must all be set to enable Google OAuth")
	}

	if config.TwoFactor.Issuer == "" {
		config.TwoFactor.Issuer = config.App.Name
	}

	return &config, nil
}

// LoadWithDefaults loads configuration with default context
func LoadWithDefaults() (*Config, error) {
	return Load(context.Background())
}
