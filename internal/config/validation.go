package config

import (
	"fmt"
	"log/slog"
	"slices"
)

// Validate validates the settings every subcommand needs (storage and
// logging). Serve-only requirements live in ValidateServe.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: POSTGRES_PASSWORD must be set", ErrInvalidPostgresPassword)
	}

	// Modern SSL modes only; allow/prefer are excluded (MITM vulnerable).
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	if c.Embedding.Dimension < 1 || c.Embedding.Dimension > 16000 {
		return fmt.Errorf("%w: must be between 1 and 16000, got %d",
			ErrInvalidEmbeddingDimension, c.Embedding.Dimension)
	}

	return nil
}

// ValidateServe validates the settings the HTTP server additionally
// requires: token signing key, token TTL, and the selected embedding
// provider's credentials.
func (c *Config) ValidateServe() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.SecretKey == "" {
		return fmt.Errorf("%w: SECRET_KEY environment variable is required", ErrMissingSecretKey)
	}
	if len(c.SecretKey) < MinSecretKeyLen {
		return fmt.Errorf("%w: need at least %d bytes for HS256, got %d",
			ErrWeakSecretKey, MinSecretKeyLen, len(c.SecretKey))
	}

	if c.AccessTokenExpireMinutes < 1 {
		return fmt.Errorf("%w: access_token_expire_minutes must be positive, got %d",
			ErrInvalidTokenExpiry, c.AccessTokenExpireMinutes)
	}

	if c.Embedding.UseAPI && c.Embedding.APIKey == "" {
		return fmt.Errorf("%w: JINA_API_KEY is required when USE_JINA_API is true",
			ErrMissingEmbeddingAPIKey)
	}

	if c.FirstSuperuser != "" && c.FirstSuperuserPassword == "" {
		return fmt.Errorf("%w: FIRST_SUPERUSER_PASSWORD must accompany FIRST_SUPERUSER",
			ErrMissingSuperuser)
	}

	if c.PostgresSSLMode == "disable" && c.Telemetry.Environment == "production" {
		slog.Warn("PostgreSQL SSL is disabled in a production environment",
			"hint", "set POSTGRES_SSL_MODE=require or stronger")
	}

	return nil
}
