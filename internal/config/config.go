// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Tenant resolution
	TenantStrategy    string // "domain", "subdomain" or "path"
	DefaultTenantSlug string // fallback when no tenant matches (optional)
	ExcludedPaths     []string

	// QR access tokens
	QRSecret string // process-wide HMAC key for QR code hashes

	// Billing
	StripeWebhookSecret string // Stripe webhook signing secret
	TrialDays           int    // trial length granted on onboarding

	// Security
	AdminSecret  string // Admin API secret
	RateLimitRPM int
}

// Defaults
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultTenantStrategy = "subdomain"
	DefaultTrialDays      = 15
	DefaultRateLimit      = 100
)

// DefaultExcludedPaths are path segments never treated as tenant slugs.
var DefaultExcludedPaths = []string{"/admin", "/auth", "/subscription", "/webhook", "/assets"}

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		TenantStrategy:      getEnv("TENANT_STRATEGY", DefaultTenantStrategy),
		DefaultTenantSlug:   os.Getenv("DEFAULT_TENANT_SLUG"),
		ExcludedPaths:       getEnvList("TENANT_EXCLUDED_PATHS", DefaultExcludedPaths),
		QRSecret:            os.Getenv("QR_SECRET"), // Required, no default
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		TrialDays:           int(getEnvInt64("TRIAL_DAYS", DefaultTrialDays)),
		AdminSecret:         os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:        int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.QRSecret == "" {
		return fmt.Errorf("QR_SECRET is required")
	}
	if len(c.QRSecret) < 16 {
		return fmt.Errorf("QR_SECRET must be at least 16 characters")
	}

	switch c.TenantStrategy {
	case "domain", "subdomain", "path":
	default:
		return fmt.Errorf("TENANT_STRATEGY must be one of domain, subdomain, path")
	}

	if c.TrialDays < 0 {
		return fmt.Errorf("TRIAL_DAYS must not be negative")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
