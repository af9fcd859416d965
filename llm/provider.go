// Package llm talks to chat and embedding endpoints of OpenAI-compatible
// servers (Ollama, OpenAI, Groq or any custom deployment) and adapts them
// to the Generator used for answers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoProvider is returned by NewProvider for an empty provider name.
	ErrNoProvider = errors.New("llm: provider not specified")
	// ErrUnknownProvider is returned by NewProvider for an unsupported name.
	ErrUnknownProvider = errors.New("llm: unknown provider")
)

// Provider is a chat and embedding endpoint.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Embed returns one vector per text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatRequest is a chat completion request. An empty Model uses the
// configured one. Temperature is always sent, so zero means zero.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the first choice of a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// Config configures a provider.
type Config struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, openai, groq, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`

	// Timeout bounds a single HTTP request. Zero means 120s.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// MaxRetries caps retries of transient failures. Zero means 3.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	// RetryDelay is the first backoff step. Zero means 2s.
	RetryDelay time.Duration `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
}

// preset holds what differs between supported servers.
type preset struct {
	baseURL string
	model   string
	// nativeEmbed selects Ollama's /api/embed batch endpoint instead of
	// /v1/embeddings.
	nativeEmbed bool
}

var presets = map[string]preset{
	"ollama": {baseURL: "http://localhost:11434", nativeEmbed: true},
	"openai": {baseURL: "https://api.openai.com", model: "text-embedding-3-small"},
	"groq":   {baseURL: "https://api.groq.com/openai", model: "llama-3.3-70b-versatile"},
	"custom": {},
}

// NewProvider creates a provider. Empty BaseURL and Model fields take the
// provider's defaults; the custom provider has none.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.Provider == "" {
		return nil, ErrNoProvider
	}
	p, ok := presets[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = p.baseURL
	}
	if cfg.Model == "" {
		cfg.Model = p.model
	}
	return newClient(cfg, p.nativeEmbed), nil
}
