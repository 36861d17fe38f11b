package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const devJWTSecret = "dev-only-secret-change-me"

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName     string `env:"APP_NAME" envDefault:"AuthGate"`
	Env         string `env:"APP_ENV" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"3000"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	ProxyHeader string `env:"PROXY_HEADER"`

	DBMaxConns    int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns    int32 `env:"DB_MIN_CONNS" envDefault:"1"`
	RedisPoolSize int   `env:"REDIS_POOL_SIZE" envDefault:"20"`

	JWTSecret       string        `env:"JWT_SECRET"`
	SessionTokenTTL time.Duration `env:"SESSION_TOKEN_TTL" envDefault:"1h"`
	ResetTokenTTL   time.Duration `env:"RESET_TOKEN_TTL" envDefault:"15m"`

	OTPTTL    time.Duration `env:"OTP_TTL" envDefault:"5m"`
	OTPDigits int           `env:"OTP_DIGITS" envDefault:"6"`
	OTPEcho   bool          `env:"OTP_ECHO" envDefault:"true"`

	RegisterRateMax    int           `env:"REGISTER_RATE_MAX" envDefault:"3"`
	RegisterRateWindow time.Duration `env:"REGISTER_RATE_WINDOW" envDefault:"1h"`
	AuthRateMax        int           `env:"AUTH_RATE_MAX" envDefault:"5"`
	AuthRateWindow     time.Duration `env:"AUTH_RATE_WINDOW" envDefault:"15m"`

	ShutdownPeriod  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"1m"`
	MigrateOnStart  bool          `env:"MIGRATE_ON_START" envDefault:"true"`

	// AdminPhones are granted the admin role at startup when registered.
	AdminPhones []string `env:"ADMIN_PHONES" envSeparator:","`
}

// Load reads configuration values from the environment and validates them.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if cfg.JWTSecret == "" && cfg.IsDev() {
		cfg.JWTSecret = devJWTSecret
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that struct tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}
	if !c.IsDev() {
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.Env))
		}
		if c.RedisURL == "" {
			errs = append(errs, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.Env))
		}
		if c.JWTSecret == devJWTSecret {
			errs = append(errs, errors.New("JWT_SECRET must not use the development default"))
		}
	}
	if c.OTPDigits < 4 || c.OTPDigits > 9 {
		errs = append(errs, fmt.Errorf("OTP_DIGITS must be between 4 and 9, got %d", c.OTPDigits))
	}
	for name, d := range map[string]time.Duration{
		"SESSION_TOKEN_TTL":    c.SessionTokenTTL,
		"RESET_TOKEN_TTL":      c.ResetTokenTTL,
		"OTP_TTL":              c.OTPTTL,
		"REGISTER_RATE_WINDOW": c.RegisterRateWindow,
		"AUTH_RATE_WINDOW":     c.AuthRateWindow,
		"JANITOR_INTERVAL":     c.JanitorInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		errs = append(errs, fmt.Errorf("DB_MIN_CONNS (%d) must be between 0 and DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns))
	}
	if c.RedisPoolSize <= 0 {
		errs = append(errs, errors.New("REDIS_POOL_SIZE must be positive"))
	}
	if c.RegisterRateMax <= 0 || c.AuthRateMax <= 0 {
		errs = append(errs, errors.New("rate limit maxima must be positive"))
	}
	return errors.Join(errs...)
}

// IsDev reports whether the process runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
