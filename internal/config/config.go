// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.sylva/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, chat/classifier models, embedder model and dimension
//   - Storage: PostgreSQL connection
//   - RAG: similarity threshold, retrieval limit, backfill batching, history window
//   - Tracing: optional OTLP export
//
// Errors are sentinel values checked with errors.Is(); secrets are masked in
// MarshalJSON and String.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates a model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbedderDimension indicates the embedder dimension is out of range.
	ErrInvalidEmbedderDimension = errors.New("invalid embedder dimension")

	// ErrInvalidThreshold indicates the similarity threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidRetrievalLimit indicates the retrieval limit is out of range.
	ErrInvalidRetrievalLimit = errors.New("invalid retrieval limit")

	// ErrInvalidBackfillBatch indicates the backfill batch size is out of range.
	ErrInvalidBackfillBatch = errors.New("invalid backfill batch size")

	// ErrInvalidHistoryWindow indicates the chat history window is out of range.
	ErrInvalidHistoryWindow = errors.New("invalid history window")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

const (
	// DefaultEmbedderModel is the default embedding model.
	// gemini-embedding-001 supports truncation to 768 dimensions, matching the
	// vector(768) column in db/migrations.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultEmbedderDimension matches the pgvector schema. Changing the
	// embedder model or dimension invalidates every stored vector; the stored
	// embedding_model tag keeps stale vectors out of similarity queries.
	DefaultEmbedderDimension = 768

	// DefaultSimilarityThreshold is the minimum cosine similarity for a note
	// to count as a retrieval candidate.
	DefaultSimilarityThreshold = 0.78

	// DefaultRetrievalLimit is the maximum number of candidate notes per query.
	DefaultRetrievalLimit = 5

	// DefaultBackfillBatchSize is the number of notes embedded concurrently
	// per backfill batch.
	DefaultBackfillBatchSize = 5

	// DefaultBackfillBatchDelay is the pause between backfill batches, to stay
	// under embedding API rate limits.
	DefaultBackfillBatchDelay = time.Second

	// DefaultHistoryWindow is the number of recent chat messages carried into
	// answer synthesis.
	DefaultHistoryWindow = 6
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider        string `mapstructure:"provider" json:"provider"`                 // "gemini" (default), "ollama", "openai"
	ModelName       string `mapstructure:"model_name" json:"model_name"`             // Answer synthesis model
	ClassifierModel string `mapstructure:"classifier_model" json:"classifier_model"` // Cheap model for classification/filtering
	OllamaHost      string `mapstructure:"ollama_host" json:"ollama_host"`

	// Embedding configuration
	EmbedderModel     string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDimension int    `mapstructure:"embedder_dimension" json:"embedder_dimension"`

	// RAG tunables
	SimilarityThreshold  float64       `mapstructure:"similarity_threshold" json:"similarity_threshold"`
	RetrievalLimit       int           `mapstructure:"retrieval_limit" json:"retrieval_limit"`
	BackfillBatchSize    int           `mapstructure:"backfill_batch_size" json:"backfill_batch_size"`
	BackfillBatchDelay   time.Duration `mapstructure:"backfill_batch_delay" json:"backfill_batch_delay"`
	HistoryWindow        int           `mapstructure:"history_window" json:"history_window"`
	CompletionTimeout    time.Duration `mapstructure:"completion_timeout" json:"completion_timeout"`
	EmbedTimeout         time.Duration `mapstructure:"embed_timeout" json:"embed_timeout"`
	VectorSearchTimeout  time.Duration `mapstructure:"vector_search_timeout" json:"vector_search_timeout"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Tracing configuration (optional OTLP export)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`

	// HTTP server configuration (serve mode)
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
}

// TracingConfig configures optional OTLP trace export.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".sylva")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when present.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Fail-fast validation
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("classifier_model", "gemini-2.5-flash-lite")
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// Embedding defaults
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embedder_dimension", DefaultEmbedderDimension)

	// RAG defaults
	viper.SetDefault("similarity_threshold", DefaultSimilarityThreshold)
	viper.SetDefault("retrieval_limit", DefaultRetrievalLimit)
	viper.SetDefault("backfill_batch_size", DefaultBackfillBatchSize)
	viper.SetDefault("backfill_batch_delay", DefaultBackfillBatchDelay)
	viper.SetDefault("history_window", DefaultHistoryWindow)
	viper.SetDefault("completion_timeout", 60*time.Second)
	viper.SetDefault("embed_timeout", 15*time.Second)
	viper.SetDefault("vector_search_timeout", 10*time.Second)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "sylva")
	viper.SetDefault("postgres_password", "sylva_dev_password")
	viper.SetDefault("postgres_db_name", "sylva")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4318")
	viper.SetDefault("tracing.service_name", "sylva")
	viper.SetDefault("tracing.environment", "dev")

	// HTTP defaults
	viper.SetDefault("listen_addr", "127.0.0.1:3500")
}

// bindEnvVariables binds environment variable overrides explicitly.
// Provider API keys (GEMINI_API_KEY, OPENAI_API_KEY) are read directly by the
// Genkit plugins, not via viper; Validate checks their presence.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "SYLVA_PROVIDER")
	mustBind("model_name", "SYLVA_MODEL_NAME")
	mustBind("classifier_model", "SYLVA_CLASSIFIER_MODEL")
	mustBind("ollama_host", "SYLVA_OLLAMA_HOST")
	mustBind("embedder_model", "SYLVA_EMBEDDER_MODEL")
	mustBind("similarity_threshold", "SYLVA_SIMILARITY_THRESHOLD")
	mustBind("listen_addr", "SYLVA_LISTEN_ADDR")
	mustBind("tracing.enabled", "SYLVA_TRACING_ENABLED")
	mustBind("tracing.endpoint", "SYLVA_TRACING_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 characters
// or fewer are fully masked to prevent substring matching; longer secrets show
// the first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
func (c *Config) FullModelName() string {
	return c.qualify(c.ModelName)
}

// FullClassifierModelName returns the provider-qualified classifier model.
// Falls back to the main model when classifier_model is unset.
func (c *Config) FullClassifierModelName() string {
	if c.ClassifierModel == "" {
		return c.FullModelName()
	}
	return c.qualify(c.ClassifierModel)
}

func (c *Config) qualify(model string) string {
	if strings.Contains(model, "/") {
		return model
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + model
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + model
	default:
		return ProviderGoogleAI + "/" + model
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
