package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 14*24*time.Hour, cfg.Claims.TokenTTL)
	assert.Equal(t, 5, cfg.Claims.RevealLimit)
	assert.Equal(t, 15*time.Minute, cfg.Claims.RevealWindow)
	assert.Equal(t, 512, cfg.Claims.QRSize)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CLAIM_TOKEN_TTL", "48h")
	t.Setenv("CLAIM_REVEAL_LIMIT", "2")
	t.Setenv("CLAIM_QR_SIZE", "64")
	t.Setenv("ADMIN_WEB_BASE_URL", "https://admin.munlink.ph/")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 48*time.Hour, cfg.Claims.TokenTTL)
	assert.Equal(t, 2, cfg.Claims.RevealLimit)
	assert.Equal(t, 512, cfg.Claims.QRSize)
	assert.Equal(t, "https://admin.munlink.ph", cfg.Claims.AdminWebBaseURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestValidateProductionRejectsDevSecrets(t *testing.T) {
	t.Setenv("ENV", EnvProduction)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())

	cfg.JWT.Secret = "a-real-secret"
	cfg.Claims.HashKey = "0123456789abcdef0123456789abcdef"
	cfg.Claims.EncryptionKey = "fedcba9876543210fedcba9876543210"
	cfg.Claims.QRSigningSecret = "qr-secret"
	assert.NoError(t, cfg.Validate())
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	assert.Equal(t, 2*time.Second, parseDuration("2s", time.Minute))
}
