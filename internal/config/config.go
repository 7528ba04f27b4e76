// Package config loads server and CLI settings from the environment, an
// optional .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ConfigFileEnv names the environment variable holding an optional config file path.
const ConfigFileEnv = "PDFCHAT_CONFIG"

// Config is the merged configuration (env > config file > defaults).
type Config struct {
	Host         string `mapstructure:"HOST"`
	Port         int    `mapstructure:"PORT"`
	UploadDir    string `mapstructure:"UPLOAD_DIR"`
	VectorDBDir  string `mapstructure:"VECTORDB_DIR"`
	ChunkSize    int    `mapstructure:"CHUNK_SIZE"`
	ChunkOverlap int    `mapstructure:"CHUNK_OVERLAP"`
	TopK         int    `mapstructure:"TOP_K"`
	UploadPolicy string `mapstructure:"UPLOAD_POLICY"`
	MaxUploadMB  int    `mapstructure:"MAX_UPLOAD_MB"`

	OpenAIAPIKey  string `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL string `mapstructure:"OPENAI_BASE_URL"`

	EmbeddingProvider   string `mapstructure:"EMBEDDING_PROVIDER"`
	EmbeddingModel      string `mapstructure:"EMBEDDING_MODEL"`
	EmbeddingBatchSize  int    `mapstructure:"EMBEDDING_BATCH_SIZE"`
	EmbeddingDimensions int    `mapstructure:"EMBEDDING_DIMENSIONS"`

	SynthesisProvider string  `mapstructure:"SYNTHESIS_PROVIDER"`
	ChatModel         string  `mapstructure:"CHAT_MODEL"`
	ChatTemperature   float64 `mapstructure:"CHAT_TEMPERATURE"`

	VectorBackend    string `mapstructure:"VECTOR_BACKEND"`
	QdrantHost       string `mapstructure:"QDRANT_HOST"`
	QdrantPort       int    `mapstructure:"QDRANT_PORT"`
	QdrantCollection string `mapstructure:"QDRANT_COLLECTION"`

	LockBackend string        `mapstructure:"LOCK_BACKEND"`
	RedisURL    string        `mapstructure:"REDIS_URL"`
	LockTTL     time.Duration `mapstructure:"LOCK_TTL"`

	MCPEnabled bool   `mapstructure:"MCP_ENABLED"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	LogFormat  string `mapstructure:"LOG_FORMAT"`
}

var defaults = map[string]any{
	"HOST":                 "0.0.0.0",
	"PORT":                 8000,
	"UPLOAD_DIR":           "uploads",
	"VECTORDB_DIR":         "vectorDB",
	"CHUNK_SIZE":           1000,
	"CHUNK_OVERLAP":        200,
	"TOP_K":                3,
	"UPLOAD_POLICY":        "append",
	"MAX_UPLOAD_MB":        50,
	"OPENAI_API_KEY":       "",
	"OPENAI_BASE_URL":      "",
	"EMBEDDING_PROVIDER":   "openai",
	"EMBEDDING_MODEL":      "text-embedding-3-small",
	"EMBEDDING_BATCH_SIZE": 500,
	"EMBEDDING_DIMENSIONS": 0,
	"SYNTHESIS_PROVIDER":   "openai",
	"CHAT_MODEL":           "gpt-3.5-turbo",
	"CHAT_TEMPERATURE":     0.3,
	"VECTOR_BACKEND":       "local",
	"QDRANT_HOST":          "localhost",
	"QDRANT_PORT":          6334,
	"QDRANT_COLLECTION":    "pdfchat",
	"LOCK_BACKEND":         "local",
	"REDIS_URL":            "",
	"LOCK_TTL":             "2m",
	"MCP_ENABLED":          true,
	"LOG_LEVEL":            "info",
	"LOG_FORMAT":           "text",
}

// Load reads .env (if present), the environment and the file named by
// PDFCHAT_CONFIG, then validates the result.
func Load() (*Config, error) {
	// Missing .env is fine outside local development.
	_ = godotenv.Load()
	return FromViper(viper.New())
}

// FromViper fills v with defaults and environment bindings and decodes it.
func FromViper(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if file := v.GetString(ConfigFileEnv); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	for _, s := range []*string{
		&c.UploadPolicy, &c.EmbeddingProvider, &c.SynthesisProvider,
		&c.VectorBackend, &c.LockBackend, &c.LogLevel, &c.LogFormat,
	} {
		*s = strings.ToLower(strings.TrimSpace(*s))
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(key, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), value))
	}
	positive := func(key string, value int) {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, value))
		}
	}

	positive("PORT", c.Port)
	positive("CHUNK_SIZE", c.ChunkSize)
	positive("TOP_K", c.TopK)
	positive("MAX_UPLOAD_MB", c.MaxUploadMB)
	positive("EMBEDDING_BATCH_SIZE", c.EmbeddingBatchSize)
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap))
	}
	if c.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIMENSIONS must not be negative, got %d", c.EmbeddingDimensions))
	}

	oneOf("UPLOAD_POLICY", c.UploadPolicy, "append", "dedupe", "replace")
	oneOf("EMBEDDING_PROVIDER", c.EmbeddingProvider, "openai", "hash")
	oneOf("SYNTHESIS_PROVIDER", c.SynthesisProvider, "openai", "extractive")
	oneOf("VECTOR_BACKEND", c.VectorBackend, "local", "qdrant")
	oneOf("LOCK_BACKEND", c.LockBackend, "local", "redis")
	oneOf("LOG_LEVEL", c.LogLevel, "debug", "info", "warn", "error")
	oneOf("LOG_FORMAT", c.LogFormat, "text", "json")

	if c.NeedsOpenAI() && c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required when an openai provider is selected"))
	}
	if c.LockBackend == "redis" && c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required when LOCK_BACKEND=redis"))
	}
	if c.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("LOCK_TTL must be positive, got %s", c.LockTTL))
	}
	return errors.Join(errs...)
}

// NeedsOpenAI reports whether any configured provider calls OpenAI.
func (c *Config) NeedsOpenAI() bool {
	return c.EmbeddingProvider == "openai" || c.SynthesisProvider == "openai"
}

// MaxUploadBytes converts MAX_UPLOAD_MB to bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}
