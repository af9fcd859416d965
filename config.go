package gardenqa

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/joesaby/gardenqa/answer"
	"github.com/joesaby/gardenqa/llm"
	"github.com/joesaby/gardenqa/retrieval"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverNeo4j  = "neo4j"
)

// Config holds all configuration for the gardenqa engine. Fields can be set
// from a YAML or JSON file and overridden by GARDENQA_* environment
// variables.
type Config struct {
	Store StoreConfig `json:"store" yaml:"store"`

	// LLM providers. An empty chat provider disables answer generation; an
	// empty embedding provider disables similarity search.
	Chat      LLMConfig `json:"chat" yaml:"chat" envPrefix:"GARDENQA_CHAT_"`
	Embedding LLMConfig `json:"embedding" yaml:"embedding" envPrefix:"GARDENQA_EMBEDDING_"`

	Retrieval retrieval.Config `json:"retrieval" yaml:"retrieval"`
	Answer    answer.Config    `json:"answer" yaml:"answer"`

	// ParamDefaults extends or overrides the built-in parameter defaults,
	// e.g. {"countyName": "Cork"}.
	ParamDefaults map[string]any `json:"param_defaults,omitempty" yaml:"param_defaults,omitempty"`

	Log    LogConfig    `json:"log" yaml:"log"`
	Server ServerConfig `json:"server" yaml:"server"`
}

// StoreConfig selects and configures the graph store.
type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver" env:"GARDENQA_STORE_DRIVER"` // sqlite or neo4j

	// DBPath is the full path to the SQLite database file. If empty,
	// defaults to ~/.gardenqa/<DBName>.db.
	DBPath string `json:"db_path" yaml:"db_path" env:"GARDENQA_DB_PATH"`
	DBName string `json:"db_name" yaml:"db_name" env:"GARDENQA_DB_NAME"`
	// StorageDir is "home" (default) for ~/.gardenqa/ or "local" for the
	// working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir" env:"GARDENQA_STORAGE_DIR"`
	// EmbeddingDim must match the embedding model.
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim" env:"GARDENQA_EMBEDDING_DIM"`

	URI            string `json:"uri" yaml:"uri" env:"GARDENQA_NEO4J_URI"`
	Username       string `json:"username" yaml:"username" env:"GARDENQA_NEO4J_USERNAME"`
	Password       string `json:"password" yaml:"password" env:"GARDENQA_NEO4J_PASSWORD"`
	Database       string `json:"database" yaml:"database" env:"GARDENQA_NEO4J_DATABASE"`
	MaxConnections int    `json:"max_connections" yaml:"max_connections" env:"GARDENQA_NEO4J_MAX_CONNECTIONS"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider   string        `json:"provider" yaml:"provider" env:"PROVIDER"` // ollama, openai, groq, custom
	Model      string        `json:"model" yaml:"model" env:"MODEL"`
	BaseURL    string        `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	APIKey     string        `json:"api_key" yaml:"api_key" env:"API_KEY"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`
	MaxRetries int           `json:"max_retries,omitempty" yaml:"max_retries,omitempty" env:"MAX_RETRIES"`
}

func (c LLMConfig) provider() llm.Config {
	return llm.Config{
		Provider:   c.Provider,
		Model:      c.Model,
		BaseURL:    c.BaseURL,
		APIKey:     c.APIKey,
		Timeout:    c.Timeout,
		MaxRetries: c.MaxRetries,
	}
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr   string `json:"addr" yaml:"addr" env:"GARDENQA_ADDR"`
	APIKey string `json:"api_key" yaml:"api_key" env:"GARDENQA_API_KEY"` // empty disables auth
	// CORSOrigins is a comma-separated list of allowed origins. Empty
	// disables CORS headers.
	CORSOrigins string        `json:"cors_origins" yaml:"cors_origins" env:"GARDENQA_CORS_ORIGINS"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout" env:"GARDENQA_REQUEST_TIMEOUT"`
	MaxBody     int64         `json:"max_body" yaml:"max_body" env:"GARDENQA_MAX_BODY"`
	Shutdown    time.Duration `json:"shutdown" yaml:"shutdown" env:"GARDENQA_SHUTDOWN_TIMEOUT"`
}

// DefaultConfig returns a Config for local use: an embedded SQLite graph
// at ~/.gardenqa/gardenqa.db and Ollama for generation and embeddings.
// Base URLs are left empty so each provider uses its own default.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Driver:       DriverSQLite,
			DBName:       "gardenqa",
			StorageDir:   "home",
			EmbeddingDim: 768,
		},
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
		},
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
		},
		Retrieval: retrieval.DefaultConfig(),
		Answer:    answer.DefaultConfig(),
		Log:       LogConfig{Level: "info", Format: "text"},
		Server: ServerConfig{
			Addr:     ":8080",
			Timeout:  2 * time.Minute,
			MaxBody:  1 << 20,
			Shutdown: 10 * time.Second,
		},
	}
}

// LoadConfig builds a Config from the defaults, the file at path (YAML or
// JSON; skipped when path is empty), a .env file in the working directory
// and GARDENQA_* environment variables, in that order. The result is
// validated.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, filepath.Base(path), err)
		}
	}

	// godotenv.Load never overrides variables already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("loading .env: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, cfg.Validate()
}

var (
	llmProviders = []string{"", "ollama", "openai", "groq", "custom"}
	logLevels    = []string{"debug", "info", "warn", "error"}
	logFormats   = []string{"text", "json"}
)

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs *multierror.Error
	bad := func(format string, args ...any) {
		errs = multierror.Append(errs, fmt.Errorf(format, args...))
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.EmbeddingDim <= 0 {
			bad("store.embedding_dim must be positive, got %d", c.Store.EmbeddingDim)
		}
	case DriverNeo4j:
		if c.Store.URI == "" {
			bad("store.uri is required for the neo4j driver")
		}
	default:
		bad("store.driver must be %q or %q, got %q", DriverSQLite, DriverNeo4j, c.Store.Driver)
	}

	if !slices.Contains(llmProviders, c.Chat.Provider) {
		bad("chat.provider %q is not supported", c.Chat.Provider)
	}
	if !slices.Contains(llmProviders, c.Embedding.Provider) {
		bad("embedding.provider %q is not supported", c.Embedding.Provider)
	}
	if c.Retrieval.WeightGraph < 0 || c.Retrieval.WeightVector < 0 {
		bad("retrieval weights must not be negative")
	}
	if c.Answer.MaxTokens < 0 {
		bad("answer.max_tokens must not be negative")
	}
	if !slices.Contains(logLevels, c.Log.Level) {
		bad("log.level %q is not one of %v", c.Log.Level, logLevels)
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		bad("log.format %q is not one of %v", c.Log.Format, logFormats)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// resolveDBPath computes the SQLite database path from the store fields.
func (c *StoreConfig) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "gardenqa"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".gardenqa", name+".db")
	}
}
