// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml or ~/.resourceiq/config.yaml)
//  3. Default values
//
// Environment variable names keep the deployment surface the service
// has always had (POSTGRES_SERVER, SECRET_KEY, JINA_API_KEY,
// GITHUB_APP_ID, ATLASSIAN_CLIENT_ID, ...), so an existing .env keeps
// working.
//
// Security: sensitive values (passwords, keys, tokens) are masked in
// String() and MarshalJSON(). Validation uses sentinel errors checked
// with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingSecretKey indicates SECRET_KEY is not set.
	ErrMissingSecretKey = errors.New("missing secret key")

	// ErrWeakSecretKey indicates SECRET_KEY is too short for HS256.
	ErrWeakSecretKey = errors.New("secret key too short")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidTokenExpiry indicates the access token TTL is out of range.
	ErrInvalidTokenExpiry = errors.New("invalid access token expiry")

	// ErrInvalidEmbeddingDimension indicates the embedding dimension is out of range.
	ErrInvalidEmbeddingDimension = errors.New("invalid embedding dimension")

	// ErrMissingEmbeddingAPIKey indicates the embedding API key is required but absent.
	ErrMissingEmbeddingAPIKey = errors.New("missing embedding API key")

	// ErrMissingSuperuser indicates the first superuser settings are incomplete.
	ErrMissingSuperuser = errors.New("missing first superuser settings")
)

// MinSecretKeyLen is the minimum SECRET_KEY length accepted for
// signing access tokens.
const MinSecretKeyLen = 32

// GitHubConfig holds GitHub App credentials for the org integration.
type GitHubConfig struct {
	// AppID is the GitHub App identifier.
	AppID int64 `mapstructure:"app_id" json:"app_id"`
	// PrivateKey is the App's PEM-encoded RSA key. SENSITIVE: masked in MarshalJSON.
	PrivateKey string `mapstructure:"private_key" json:"private_key"`
	// WebhookSecret signs installation webhooks. SENSITIVE: masked in MarshalJSON.
	WebhookSecret string `mapstructure:"webhook_secret" json:"webhook_secret"`
	// Org overrides the organization name stored by the installation webhook.
	Org string `mapstructure:"org" json:"org"`
}

// MarshalJSON masks the App credentials.
func (c GitHubConfig) MarshalJSON() ([]byte, error) {
	type alias GitHubConfig
	a := alias(c)
	a.PrivateKey = maskSecret(a.PrivateKey)
	a.WebhookSecret = maskSecret(a.WebhookSecret)
	return json.Marshal(a)
}

// AtlassianConfig holds the OAuth 2.0 (3LO) client settings for Jira
// Cloud.
type AtlassianConfig struct {
	ClientID string `mapstructure:"client_id" json:"client_id"`
	// ClientSecret is the OAuth client secret. SENSITIVE: masked in MarshalJSON.
	ClientSecret string   `mapstructure:"client_secret" json:"client_secret"`
	RedirectURI  string   `mapstructure:"redirect_uri" json:"redirect_uri"`
	AuthURL      string   `mapstructure:"auth_url" json:"auth_url"`
	TokenURL     string   `mapstructure:"token_url" json:"token_url"`
	Audience     string   `mapstructure:"audience" json:"audience"`
	Scopes       []string `mapstructure:"scopes" json:"scopes"`
}

// MarshalJSON masks the client secret.
func (c AtlassianConfig) MarshalJSON() ([]byte, error) {
	type alias AtlassianConfig
	a := alias(c)
	a.ClientSecret = maskSecret(a.ClientSecret)
	return json.Marshal(a)
}

// JiraConfig holds the basic-auth fallback used when no OAuth token
// has been stored yet, plus the webhook secret.
type JiraConfig struct {
	URL   string `mapstructure:"url" json:"url"`
	Email string `mapstructure:"email" json:"email"`
	// APIToken is the Jira API token. SENSITIVE: masked in MarshalJSON.
	APIToken string `mapstructure:"api_token" json:"api_token"`
	// WebhookSecret signs incoming webhooks. SENSITIVE: masked in MarshalJSON.
	WebhookSecret string `mapstructure:"webhook_secret" json:"webhook_secret"`
}

// MarshalJSON masks the API token and webhook secret.
func (c JiraConfig) MarshalJSON() ([]byte, error) {
	type alias JiraConfig
	a := alias(c)
	a.APIToken = maskSecret(a.APIToken)
	a.WebhookSecret = maskSecret(a.WebhookSecret)
	return json.Marshal(a)
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// UseAPI selects the hosted Jina API; false uses a local Ollama model.
	UseAPI bool `mapstructure:"use_api" json:"use_api"`
	// APIKey authenticates against the hosted API. SENSITIVE: masked in MarshalJSON.
	APIKey string `mapstructure:"api_key" json:"api_key"`
	// APIURL is the hosted API base URL (default: https://api.jina.ai).
	APIURL string `mapstructure:"api_url" json:"api_url"`
	// Model is the hosted embedding model name.
	Model string `mapstructure:"model" json:"model"`
	// LocalModel is the Ollama embedding model name.
	LocalModel string `mapstructure:"local_model" json:"local_model"`
	// Dimension is the stored vector width; responses are padded or
	// truncated to match the pgvector columns.
	Dimension int `mapstructure:"dimension" json:"dimension"`
	// OllamaHost is the local Ollama endpoint.
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`
}

// MarshalJSON masks the API key.
func (c EmbeddingConfig) MarshalJSON() ([]byte, error) {
	type alias EmbeddingConfig
	a := alias(c)
	a.APIKey = maskSecret(a.APIKey)
	return json.Marshal(a)
}

// TelemetryConfig holds OTLP trace export settings.
type TelemetryConfig struct {
	// Enabled turns span export on; the server runs fine without it.
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Endpoint is the OTLP/HTTP collector host:port (default: localhost:4318).
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
	// Environment is the deployment environment tag.
	Environment string `mapstructure:"environment" json:"environment"`
	// ServiceName identifies this service in traces.
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens),
// update MarshalJSON or the nested struct's MarshalJSON.
type Config struct {
	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	// Auth
	SecretKey                string `mapstructure:"secret_key" json:"secret_key"` // SENSITIVE: masked in MarshalJSON
	AccessTokenExpireMinutes int    `mapstructure:"access_token_expire_minutes" json:"access_token_expire_minutes"`
	FirstSuperuser           string `mapstructure:"first_superuser" json:"first_superuser"`
	FirstSuperuserPassword   string `mapstructure:"first_superuser_password" json:"first_superuser_password"` // SENSITIVE: masked in MarshalJSON

	// Storage (see storage.go for DSN/URL construction)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP serving
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For (set true behind reverse proxy)
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`   // Per-client request burst; 0 uses the server default

	// Integrations
	Embedding EmbeddingConfig `mapstructure:"embedding" json:"embedding"`
	GitHub    GitHubConfig    `mapstructure:"github" json:"github"`
	Atlassian AtlassianConfig `mapstructure:"atlassian" json:"atlassian"`
	Jira      JiraConfig      `mapstructure:"jira" json:"jira"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" json:"telemetry"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configure Viper search paths. A missing file is fine; env vars
	// and defaults cover everything.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".resourceiq"))
	}

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using environment and defaults")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)

	// 8 days, matching the token lifetime clients already expect.
	viper.SetDefault("access_token_expire_minutes", 11520)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "postgres")
	viper.SetDefault("postgres_db_name", "resourceiq")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("cors_origins", []string{"http://localhost:5173"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 0)

	// Embedding defaults
	viper.SetDefault("embedding.use_api", false)
	viper.SetDefault("embedding.api_url", "https://api.jina.ai")
	viper.SetDefault("embedding.model", "jina-embeddings-v3")
	viper.SetDefault("embedding.local_model", "all-minilm")
	viper.SetDefault("embedding.dimension", 1536)
	viper.SetDefault("embedding.ollama_host", "http://localhost:11434")

	// Atlassian OAuth endpoints are stable; only credentials vary.
	viper.SetDefault("atlassian.auth_url", "https://auth.atlassian.com/authorize")
	viper.SetDefault("atlassian.token_url", "https://auth.atlassian.com/oauth/token")
	viper.SetDefault("atlassian.audience", "api.atlassian.com")
	viper.SetDefault("atlassian.scopes", []string{"read:jira-work", "read:jira-user", "offline_access"})

	// Telemetry defaults
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.endpoint", "localhost:4318")
	viper.SetDefault("telemetry.environment", "dev")
	viper.SetDefault("telemetry.service_name", "resourceiq")
}

// bindEnvVariables binds environment variables explicitly so the
// historical names keep working without a RESOURCEIQ_ prefix.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key string, envVars ...string) {
		args := append([]string{key}, envVars...)
		if err := viper.BindEnv(args...); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q: %v", key, err))
		}
	}

	mustBind("log_level", "LOG_LEVEL")
	mustBind("log_json", "LOG_JSON")

	mustBind("secret_key", "SECRET_KEY")
	mustBind("access_token_expire_minutes", "ACCESS_TOKEN_EXPIRE_MINUTES")
	mustBind("first_superuser", "FIRST_SUPERUSER")
	mustBind("first_superuser_password", "FIRST_SUPERUSER_PASSWORD")

	mustBind("postgres_host", "POSTGRES_SERVER")
	mustBind("postgres_port", "POSTGRES_PORT")
	mustBind("postgres_user", "POSTGRES_USER")
	mustBind("postgres_password", "POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "POSTGRES_DB")
	mustBind("postgres_ssl_mode", "POSTGRES_SSL_MODE")

	mustBind("cors_origins", "BACKEND_CORS_ORIGINS")
	mustBind("trust_proxy", "TRUST_PROXY")
	mustBind("rate_burst", "RATE_BURST")

	mustBind("embedding.use_api", "USE_JINA_API")
	mustBind("embedding.api_key", "JINA_API_KEY")
	mustBind("embedding.api_url", "JINA_API_URL")
	mustBind("embedding.model", "JINA_EMBEDDING_MODEL")
	mustBind("embedding.local_model", "LOCAL_EMBEDDING_MODEL")
	mustBind("embedding.dimension", "EMBEDDING_DIMENSION")
	mustBind("embedding.ollama_host", "OLLAMA_HOST")

	mustBind("github.app_id", "GITHUB_APP_ID")
	mustBind("github.private_key", "GITHUB_PRIVATE_KEY")
	mustBind("github.webhook_secret", "GITHUB_WEBHOOK_SECRET")
	mustBind("github.org", "GITHUB_ORG")

	mustBind("atlassian.client_id", "ATLASSIAN_CLIENT_ID")
	mustBind("atlassian.client_secret", "ATLASSIAN_CLIENT_SECRET")
	mustBind("atlassian.redirect_uri", "ATLASSIAN_REDIRECT_URI")
	mustBind("atlassian.auth_url", "ATLASSIAN_AUTH_URL")
	mustBind("atlassian.token_url", "ATLASSIAN_TOKEN_URL")
	mustBind("atlassian.audience", "ATLASSIAN_API_AUDIENCE")
	mustBind("atlassian.scopes", "ATLASSIAN_SCOPES")

	mustBind("jira.url", "JIRA_URL")
	mustBind("jira.email", "JIRA_EMAIL")
	mustBind("jira.api_token", "JIRA_API_TOKEN")
	mustBind("jira.webhook_secret", "JIRA_WEBHOOK_SECRET")

	mustBind("telemetry.enabled", "TELEMETRY_ENABLED")
	mustBind("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT", "TELEMETRY_ENDPOINT")
	mustBind("telemetry.environment", "ENVIRONMENT")
	mustBind("telemetry.service_name", "OTEL_SERVICE_NAME")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid substring matches against real secret text.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 bytes or fewer are fully masked; longer ones keep the
// first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking. Nested integration structs mask their own fields.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.SecretKey = maskSecret(a.SecretKey)
	a.FirstSuperuserPassword = maskSecret(a.FirstSuperuserPassword)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// JiraOAuthEnabled reports whether the OAuth client settings are
// complete enough to run the 3LO flow.
func (c *Config) JiraOAuthEnabled() bool {
	return c.Atlassian.ClientID != "" && c.Atlassian.ClientSecret != "" && c.Atlassian.RedirectURI != ""
}

// GitHubEnabled reports whether GitHub App credentials are configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHub.AppID != 0 && c.GitHub.PrivateKey != ""
}
