// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// knownWeakSecrets contains default/example secrets that must be rejected in production.
var knownWeakSecrets = []string{
	"change-me-to-32-byte-secret-key!",
	"REPLACE_WITH_YOUR_OWN_SECRET_KEY!",
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath        string `env:"NGOCMS_DB_PATH" envDefault:"./data/ngocms.db"`
	SessionSecret string `env:"NGOCMS_SESSION_SECRET,required"`
	ServerHost    string `env:"NGOCMS_SERVER_HOST" envDefault:"localhost"`
	ServerPort    int    `env:"NGOCMS_SERVER_PORT" envDefault:"8080"`
	Env           string `env:"NGOCMS_ENV" envDefault:"development"`
	LogLevel      string `env:"NGOCMS_LOG_LEVEL" envDefault:"info"`

	// Cache configuration
	RedisURL     string `env:"NGOCMS_REDIS_URL"`                         // Optional Redis URL for distributed caching
	CachePrefix  string `env:"NGOCMS_CACHE_PREFIX" envDefault:"ngocms:"` // Redis key prefix
	CacheTTL     int    `env:"NGOCMS_CACHE_TTL" envDefault:"3600"`       // Default cache TTL in seconds
	CacheMaxSize int    `env:"NGOCMS_CACHE_MAX_SIZE" envDefault:"10000"` // Max memory cache entries

	// SMTP configuration for the newsletter relay
	SMTPHost     string `env:"NGOCMS_SMTP_HOST"`
	SMTPPort     int    `env:"NGOCMS_SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"NGOCMS_SMTP_USER"`
	SMTPPassword string `env:"NGOCMS_SMTP_PASSWORD"`
	SMTPFrom     string `env:"NGOCMS_SMTP_FROM"`

	// Payment gateway values exposed to the donation page. Only the
	// client-facing public key and contract code; no secret key is read.
	MonnifyPublicKey    string `env:"NGOCMS_MONNIFY_PUBLIC_KEY"`
	MonnifyContractCode string `env:"NGOCMS_MONNIFY_CONTRACT_CODE"`

	// NotificationRetention caps the activity log size.
	NotificationRetention int `env:"NGOCMS_NOTIFICATION_RETENTION" envDefault:"200"`

	// Seeding configuration for the first admin account
	DoSeed        bool   `env:"NGOCMS_DO_SEED" envDefault:"false"`
	SeedEmail     string `env:"NGOCMS_SEED_EMAIL"`
	SeedPassword  string `env:"NGOCMS_SEED_PASSWORD"`
	AllowedOrigin string `env:"NGOCMS_ALLOWED_ORIGIN"` // CORS origin for the public site
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// MailEnabled returns true if SMTP is configured.
func (c Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// MinSessionSecretLength is the minimum required length for the session secret.
const MinSessionSecretLength = 32

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Validate session secret length
	if len(cfg.SessionSecret) < MinSessionSecretLength {
		return nil, fmt.Errorf("NGOCMS_SESSION_SECRET must be at least %d bytes long, got %d bytes; "+
			"generate a secure secret with: openssl rand -base64 32",
			MinSessionSecretLength, len(cfg.SessionSecret))
	}

	// Reject known weak/default secrets
	for _, weak := range knownWeakSecrets {
		if cfg.SessionSecret == weak {
			return nil, fmt.Errorf("NGOCMS_SESSION_SECRET is a known default value and must not be used; " +
				"generate a secure secret with: openssl rand -base64 32")
		}
	}

	// Warn about low-entropy secrets
	if !hasMinimumEntropy(cfg.SessionSecret) {
		slog.Warn("NGOCMS_SESSION_SECRET has low character diversity; " +
			"consider generating a random secret with: openssl rand -base64 32")
	}

	if cfg.DoSeed && (cfg.SeedEmail == "" || cfg.SeedPassword == "") {
		return nil, fmt.Errorf("NGOCMS_DO_SEED requires NGOCMS_SEED_EMAIL and NGOCMS_SEED_PASSWORD")
	}

	return cfg, nil
}

// hasMinimumEntropy checks that a secret contains at least 3 character classes
// (lowercase, uppercase, digits, special characters).
func hasMinimumEntropy(s string) bool {
	charTypes := 0
	if strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyz") {
		charTypes++
	}
	if strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		charTypes++
	}
	if strings.ContainsAny(s, "0123456789") {
		charTypes++
	}
	if strings.ContainsAny(s, "!@#$%^&*()-_=+[]{}|;:,.<>?/~`'\"\\") {
		charTypes++
	}
	return charTypes >= 3
}
