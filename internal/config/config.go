// Package config provides configuration for the auth server.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the server configuration. All values come from the
// environment; see FromEnv for variable names and defaults.
type Config struct {
	ListenAddr  string `validate:"required"`
	DatabaseURL string `validate:"required"`

	// Identity provider. Either IssuerURL (OIDC discovery) or the three
	// explicit endpoint URLs must be set.
	IssuerURL        string `validate:"omitempty,url"`
	AuthorizationURL string `validate:"omitempty,url"`
	TokenURL         string `validate:"omitempty,url"`
	UserinfoURL      string `validate:"omitempty,url"`
	ClientID         string `validate:"required"`
	ClientSecret     string `validate:"required"`
	Scopes           []string
	// RedirectURL must exactly match the URI registered with the provider;
	// a mismatch here is the most common configuration failure.
	RedirectURL string `validate:"required,url"`

	// SessionSecret signs session tokens (HS256).
	SessionSecret string `validate:"required,min=32"`
	// SessionTTL is the fixed session lifetime.
	SessionTTL time.Duration `validate:"required"`
	// StateTTL bounds how long a login attempt may sit between redirect
	// and callback.
	StateTTL time.Duration `validate:"required"`
	// StateEncryptionKey optionally encrypts PKCE verifiers at rest
	// (hex-encoded 32 bytes). Empty disables encryption.
	StateEncryptionKey string `validate:"omitempty,len=64,hexadecimal"`

	// CORSOrigins lists the web origins allowed to call the JSON endpoints
	// with credentials. Empty allows all origins (development only).
	CORSOrigins []string

	LogLevel  string
	LogFormat string
}

// FromEnv loads configuration from environment variables.
func FromEnv() *Config {
	return &Config{
		ListenAddr:  getEnv("PERCH_LISTEN_ADDR", ":8080"),
		DatabaseURL: getEnv("PERCH_DATABASE_URL", ""),

		IssuerURL:        getEnv("PERCH_OAUTH_ISSUER_URL", ""),
		AuthorizationURL: getEnv("PERCH_OAUTH_AUTHORIZATION_URL", ""),
		TokenURL:         getEnv("PERCH_OAUTH_TOKEN_URL", ""),
		UserinfoURL:      getEnv("PERCH_OAUTH_USERINFO_URL", ""),
		ClientID:         getEnv("PERCH_OAUTH_CLIENT_ID", ""),
		ClientSecret:     getEnv("PERCH_OAUTH_CLIENT_SECRET", ""),
		Scopes:           getEnvList("PERCH_OAUTH_SCOPES", nil),
		RedirectURL:      getEnv("PERCH_OAUTH_REDIRECT_URL", ""),

		SessionSecret:      getEnv("PERCH_SESSION_SECRET", ""),
		SessionTTL:         getEnvDuration("PERCH_SESSION_TTL", 24*time.Hour),
		StateTTL:           getEnvDuration("PERCH_STATE_TTL", 10*time.Minute),
		StateEncryptionKey: getEnv("PERCH_STATE_ENCRYPTION_KEY", ""),

		CORSOrigins: getEnvList("PERCH_CORS_ORIGINS", nil),

		LogLevel:  getEnv("PERCH_LOG_LEVEL", "info"),
		LogFormat: getEnv("PERCH_LOG_FORMAT", "text"),
	}
}

// Validate checks the configuration for completeness.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.IssuerURL == "" && (c.AuthorizationURL == "" || c.TokenURL == "" || c.UserinfoURL == "") {
		return fmt.Errorf("invalid configuration: set PERCH_OAUTH_ISSUER_URL or all of authorization/token/userinfo URLs")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
