package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":3000", cfg.Address())
	require.Equal(t, time.Hour, cfg.SessionTokenTTL)
	require.Equal(t, 15*time.Minute, cfg.ResetTokenTTL)
	require.Equal(t, 5*time.Minute, cfg.OTPTTL)
	require.Equal(t, 6, cfg.OTPDigits)
	require.Equal(t, 3, cfg.RegisterRateMax)
	require.Equal(t, time.Hour, cfg.RegisterRateWindow)
	require.Equal(t, 5, cfg.AuthRateMax)
	require.Equal(t, 15*time.Minute, cfg.AuthRateWindow)
	require.Equal(t, devJWTSecret, cfg.JWTSecret)
	require.EqualValues(t, 10, cfg.DBMaxConns)
	require.EqualValues(t, 1, cfg.DBMinConns)
	require.Equal(t, 20, cfg.RedisPoolSize)
}

func TestLoadProductionRequiresBackends(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")

	_, err := Load()
	require.ErrorContains(t, err, "DATABASE_URL")
	require.ErrorContains(t, err, "REDIS_URL")
}

func TestLoadProductionRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://localhost/auth")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	_, err := Load()
	require.ErrorContains(t, err, "JWT_SECRET")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("PORT", ":8081")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("OTP_TTL", "90s")
	t.Setenv("AUTH_RATE_MAX", "10")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8081", cfg.Address())
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 90*time.Second, cfg.OTPTTL)
	require.Equal(t, 10, cfg.AuthRateMax)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("OTP_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestValidateRejectsDigits(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("OTP_DIGITS", "2")

	_, err := Load()
	require.ErrorContains(t, err, "OTP_DIGITS")
}

func TestLoadAdminPhones(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("ADMIN_PHONES", "0912345678,0987654321")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"0912345678", "0987654321"}, cfg.AdminPhones)
}

func TestValidateRejectsZeroJanitorInterval(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("JANITOR_INTERVAL", "0s")

	_, err := Load()
	require.ErrorContains(t, err, "JANITOR_INTERVAL")
}

func TestValidateRejectsInvertedPoolBounds(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("DB_MAX_CONNS", "2")
	t.Setenv("DB_MIN_CONNS", "5")

	_, err := Load()
	require.ErrorContains(t, err, "DB_MIN_CONNS")
}
