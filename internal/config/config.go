package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds everything the server reads from the environment.
type Config struct {
	AppEnv  string `envconfig:"APP_ENV" default:"development"`
	AppAddr string `envconfig:"APP_ADDR" default:":8080"`
	BaseURL string `envconfig:"BASE_URL" default:"http://localhost:8080"`

	DBDSN            string `envconfig:"DB_DSN" required:"true"`
	DBConnectRetries int    `envconfig:"DB_CONNECT_RETRIES" default:"5"`
	DBLogSQL         bool   `envconfig:"DB_LOG_SQL" default:"false"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	CORSOrigins       []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173"`
	AllowRegistration bool     `envconfig:"ALLOW_REGISTRATION" default:"false"`

	// LockTimeout bounds how long a checkout or shift transaction may wait on a row lock.
	LockTimeout    time.Duration `envconfig:"LOCK_TIMEOUT" default:"5s"`
	CashSalesScope string        `envconfig:"CASH_SALES_SCOPE" default:"cashier"`

	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash-001"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads an optional .env file and then the process environment.
// The returned bool reports whether a .env file was found.
func Load(files ...string) (*Config, bool, error) {
	foundEnv := godotenv.Load(files...) == nil

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, foundEnv, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, foundEnv, err
	}
	return &cfg, foundEnv, nil
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	if c.LockTimeout <= 0 {
		return errors.New("config: LOCK_TIMEOUT must be positive")
	}
	if c.TokenTTL <= 0 {
		return errors.New("config: TOKEN_TTL must be positive")
	}
	switch c.CashSalesScope {
	case "cashier", "register":
	default:
		return fmt.Errorf("config: unknown CASH_SALES_SCOPE %q", c.CashSalesScope)
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
