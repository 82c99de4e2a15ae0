package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "QR_SECRET", "0123456789abcdef0123456789abcdef")
	setEnv(t, "PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultTenantStrategy, cfg.TenantStrategy)
	assert.Equal(t, DefaultTrialDays, cfg.TrialDays)
	assert.Equal(t, DefaultExcludedPaths, cfg.ExcludedPaths)
}

func TestLoad_MissingQRSecret(t *testing.T) {
	setEnv(t, "QR_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "QR_SECRET is required")
}

func TestLoad_ShortQRSecret(t *testing.T) {
	setEnv(t, "QR_SECRET", "tooshort")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "at least 16 characters")
}

func TestLoad_InvalidStrategy(t *testing.T) {
	setEnv(t, "QR_SECRET", "0123456789abcdef0123456789abcdef")
	setEnv(t, "TENANT_STRATEGY", "header")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "TENANT_STRATEGY")
}

func TestLoad_CustomExcludedPaths(t *testing.T) {
	setEnv(t, "QR_SECRET", "0123456789abcdef0123456789abcdef")
	setEnv(t, "TENANT_EXCLUDED_PATHS", "/internal, /ops,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"/internal", "/ops"}, cfg.ExcludedPaths)
}

func TestLoad_RateLimitPerMinute(t *testing.T) {
	setEnv(t, "QR_SECRET", "0123456789abcdef0123456789abcdef")
	setEnv(t, "RATE_LIMIT_RPM", "240")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 240, cfg.RateLimitRPM)
}

func TestConfig_EnvHelpers(t *testing.T) {
	setEnv(t, "QR_SECRET", "0123456789abcdef0123456789abcdef")
	setEnv(t, "ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
}
