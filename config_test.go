package gardenqa

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, 1.0, cfg.Retrieval.WeightGraph)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Driver = DriverNeo4j
	cfg.Chat.Provider = "gemini"
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	msg := err.Error()
	assert.Contains(t, msg, "store.uri is required")
	assert.Contains(t, msg, `chat.provider "gemini"`)
	assert.Contains(t, msg, `log.level "loud"`)
	assert.Contains(t, msg, "3 errors occurred")
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Driver = "postgres"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gardenqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  db_path: /tmp/garden.db
  embedding_dim: 384
chat:
  provider: groq
  model: llama-3.1-8b-instant
retrieval:
  semantic_k: 3
param_defaults:
  countyName: Cork
server:
  timeout: 30s
`), 0o644))

	t.Chdir(dir)
	t.Setenv("GARDENQA_CHAT_API_KEY", "secret")
	t.Setenv("GARDENQA_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/garden.db", cfg.Store.DBPath)
	assert.Equal(t, 384, cfg.Store.EmbeddingDim)
	assert.Equal(t, "groq", cfg.Chat.Provider)
	assert.Equal(t, "secret", cfg.Chat.APIKey)
	assert.Equal(t, 3, cfg.Retrieval.SemanticK)
	// Unset keys keep their defaults.
	assert.Equal(t, 0.5, cfg.Retrieval.WeightVector)
	assert.Equal(t, "Cork", cfg.ParamDefaults["countyName"])
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GARDENQA_STORE_DRIVER=neo4j\nGARDENQA_NEO4J_URI=bolt://graph:7687\n"), 0o644))
	t.Chdir(dir)
	// Registered so the variables godotenv sets are restored afterwards.
	t.Setenv("GARDENQA_STORE_DRIVER", "")
	t.Setenv("GARDENQA_NEO4J_URI", "")
	os.Unsetenv("GARDENQA_STORE_DRIVER")
	os.Unsetenv("GARDENQA_NEO4J_URI")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DriverNeo4j, cfg.Store.Driver)
	assert.Equal(t, "bolt://graph:7687", cfg.Store.URI)
}

func TestLoadConfigInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [unclosed"), 0o644))
	t.Chdir(t.TempDir())

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestResolveDBPath(t *testing.T) {
	sc := StoreConfig{DBPath: "/data/x.db"}
	assert.Equal(t, "/data/x.db", sc.resolveDBPath())

	sc = StoreConfig{DBName: "garden", StorageDir: "local"}
	assert.Equal(t, "garden.db", sc.resolveDBPath())

	sc = StoreConfig{}
	got := sc.resolveDBPath()
	assert.True(t, strings.HasSuffix(got, filepath.Join(".gardenqa", "gardenqa.db")), got)
}

func TestNewLoggerWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gardenqa.log")
	logger, closer, err := NewLogger(LogConfig{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	logger.Debug("relax: attempt", "strategy", "drop_soil")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"relax: attempt"`)
	assert.Contains(t, string(data), `"strategy":"drop_soil"`)
}

func TestNewLoggerRejectsBadConfig(t *testing.T) {
	_, _, err := NewLogger(LogConfig{Level: "chatty"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, _, err = NewLogger(LogConfig{Format: "xml"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
