package config

import (
	"errors"
	"os"
)

type Config struct {
	AppPort string

	// Keycloak / OIDC
	OAuthIssuer       string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthRedirectURL  string

	// Optional second provider
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Server-wide secret for at-rest token encryption.
	// Absence is a hard configuration failure, never a silent fallback.
	EncryptionSecret string

	RedisAddr     string
	RedisPassword string

	// Empty DSN selects the in-memory user store (dev/tests).
	DatabaseDSN string
}

func Load() Config {
	cfg := Config{
		AppPort: os.Getenv("APP_PORT"),

		OAuthIssuer:       os.Getenv("OAUTH_ISSUER"),
		OAuthClientID:     os.Getenv("OAUTH_CLIENT_ID"),
		OAuthClientSecret: os.Getenv("OAUTH_CLIENT_SECRET"),
		OAuthRedirectURL:  os.Getenv("OAUTH_REDIRECT_URL"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),

		EncryptionSecret: os.Getenv("PAYLOAD_SECRET"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		DatabaseDSN: os.Getenv("DATABASE_DSN"),
	}

	if cfg.AppPort == "" {
		cfg.AppPort = "8080"
	}

	return cfg
}

// Validate enforces the configuration this service cannot run without.
func (c Config) Validate() error {
	if c.OAuthIssuer == "" {
		return errors.New("config: OAUTH_ISSUER is required")
	}
	if c.OAuthClientID == "" {
		return errors.New("config: OAUTH_CLIENT_ID is required")
	}
	if c.OAuthClientSecret == "" {
		return errors.New("config: OAUTH_CLIENT_SECRET is required")
	}
	if c.EncryptionSecret == "" {
		return errors.New("config: PAYLOAD_SECRET is required for token encryption")
	}
	if c.RedisAddr == "" {
		return errors.New("config: REDIS_ADDR is required")
	}
	return nil
}
