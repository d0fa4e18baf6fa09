package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("JWT_EXPIRY", "")
	t.Setenv("PAGE_DEFAULT_LIMIT", "")
	t.Setenv("PAGE_MAX_LIMIT", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("BROADCAST_PINS", "")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, 50, cfg.PageDefaultLimit)
	assert.Equal(t, 200, cfg.PageMaxLimit)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.BroadcastPins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_EXPIRY", "15m")
	t.Setenv("WS_FRAME_RATE", "2.5")
	t.Setenv("BROADCAST_PINS", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.JWTExpiry)
	assert.Equal(t, 2.5, cfg.WSFrameRate)
	assert.True(t, cfg.BroadcastPins)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "lots")
	t.Setenv("RATE_LIMIT_WINDOW", "soon")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 100, cfg.RateLimitMaxRequests)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()

	require.Error(t, err)
	require.NotNil(t, cfg)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestValidate_PageLimits(t *testing.T) {
	cfg := &Config{
		StoreConnectAttempts: 1,
		PageDefaultLimit:     100,
		PageMaxLimit:         10,
		WSSendBuffer:         1,
		WSFrameBurst:         1,
	}
	assert.Error(t, cfg.Validate())

	cfg.PageMaxLimit = 100
	assert.NoError(t, cfg.Validate())
}
