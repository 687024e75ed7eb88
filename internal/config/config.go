// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, STUDY_* prefix)
//  2. Config file (./config.yaml or ~/.study-assistant/config.yaml)
//  3. Default values
//
// Sensitive fields (PostgreSQL password, Gemini API key) are masked in
// MarshalJSON so a logged Config never leaks credentials.
//
// Validation uses sentinel errors checkable with errors.Is(); see
// validation.go.
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

// Default model identifiers.
const (
	// DefaultGenerationModel is the text-generation model used when the
	// config does not choose one.
	DefaultGenerationModel = "gemini-2.5-flash"

	// DefaultEmbeddingModel outputs 3072 dimensions by default but supports
	// truncation via OutputDimensionality; the pgvector schema stores 768.
	DefaultEmbeddingModel = "gemini-embedding-001"

	// DefaultEmbeddingDimension matches the vector(768) column in the
	// knowledge_chunks migration.
	DefaultEmbeddingDimension = 768
)

// Config stores application configuration.
//
// Sensitive fields are explicitly masked in MarshalJSON; when adding a new
// secret field, update that method.
type Config struct {
	// HTTP server
	Addr       string `mapstructure:"addr" json:"addr"`
	TrustProxy bool   `mapstructure:"trust_proxy" json:"trust_proxy"` // trust X-Forwarded-For (set behind a reverse proxy)

	// Per-client rate limiting
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second" json:"rate_limit_per_second"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`

	// Generation provider. An empty GeminiAPIKey selects degraded placeholder
	// mode instead of failing startup.
	GeminiAPIKey    string `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked in MarshalJSON
	GenerationModel string `mapstructure:"generation_model" json:"generation_model"`
	EmbeddingModel  string `mapstructure:"embedding_model" json:"embedding_model"`
	EmbeddingDim    int    `mapstructure:"embedding_dimension" json:"embedding_dimension"`

	// Knowledge index
	MaxChunkSize int `mapstructure:"max_chunk_size" json:"max_chunk_size"`

	// Tracing. An empty TracingEndpoint disables span export; spans are sent
	// over OTLP HTTP to a local collector/agent, which handles auth and
	// forwarding.
	TracingEndpoint    string `mapstructure:"tracing_endpoint" json:"tracing_endpoint"`
	TracingEnvironment string `mapstructure:"tracing_environment" json:"tracing_environment"`

	// Storage. When PostgresHost is empty the service runs on in-memory
	// stores (development and tests).
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".study-assistant"))
	}

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults and env cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults", "config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides the individual postgres_* settings; common in
	// cloud deployments.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("trust_proxy", false)

	v.SetDefault("rate_limit_per_second", 5.0)
	v.SetDefault("rate_limit_burst", 10)

	v.SetDefault("generation_model", DefaultGenerationModel)
	v.SetDefault("embedding_model", DefaultEmbeddingModel)
	v.SetDefault("embedding_dimension", DefaultEmbeddingDimension)

	v.SetDefault("max_chunk_size", 1000)

	v.SetDefault("tracing_endpoint", "")
	v.SetDefault("tracing_environment", "dev")

	v.SetDefault("postgres_host", "")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "study")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db_name", "study_assistant")
	v.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds environment overrides explicitly so the supported
// surface stays auditable.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a programming bug.
	mustBind := func(key string, envVars ...string) {
		if err := v.BindEnv(append([]string{key}, envVars...)...); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q: %v", key, err))
		}
	}

	mustBind("addr", "STUDY_ADDR")
	mustBind("trust_proxy", "STUDY_TRUST_PROXY")
	mustBind("rate_limit_per_second", "STUDY_RATE_LIMIT_PER_SECOND")
	mustBind("rate_limit_burst", "STUDY_RATE_LIMIT_BURST")

	mustBind("gemini_api_key", "GEMINI_API_KEY")
	mustBind("generation_model", "STUDY_GENERATION_MODEL")
	mustBind("embedding_model", "STUDY_EMBEDDING_MODEL")
	mustBind("embedding_dimension", "STUDY_EMBEDDING_DIMENSION")
	mustBind("max_chunk_size", "STUDY_MAX_CHUNK_SIZE")
	mustBind("tracing_endpoint", "STUDY_TRACING_ENDPOINT")
	mustBind("tracing_environment", "STUDY_TRACING_ENVIRONMENT")

	mustBind("postgres_host", "STUDY_POSTGRES_HOST")
	mustBind("postgres_port", "STUDY_POSTGRES_PORT")
	mustBind("postgres_user", "STUDY_POSTGRES_USER")
	mustBind("postgres_password", "STUDY_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "STUDY_POSTGRES_DB_NAME")
	mustBind("postgres_ssl_mode", "STUDY_POSTGRES_SSL_MODE")
}

// UsesPostgres reports whether a PostgreSQL backend is configured; otherwise
// the service runs on in-memory stores.
func (c *Config) UsesPostgres() bool {
	return c.PostgresHost != ""
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid accidental substring matches against real secret content.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Secrets of 8 characters or
// fewer are fully masked; longer ones keep the first and last two characters
// for debug utility. This defends against accidental logging, not against a
// compromised log store.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive fields masked.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.GeminiAPIKey = maskSecret(a.GeminiAPIKey)
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
