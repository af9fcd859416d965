package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrEmptyResponse is returned when the provider answers with no text.
var ErrEmptyResponse = errors.New("llm: empty response")

// GenerateOptions tune a single generation.
type GenerateOptions struct {
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature"`
}

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// chatGenerator adapts a Provider's chat endpoint to Generator.
type chatGenerator struct {
	provider Provider
	name     string
	system   string
}

// NewGenerator wraps p as a Generator. name labels metrics and spans;
// system, when non-empty, is sent as the system message.
func NewGenerator(p Provider, name, system string) Generator {
	return &chatGenerator{provider: p, name: name, system: system}
}

func (g *chatGenerator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "llm.Generate",
		trace.WithAttributes(
			attribute.String("provider", g.name),
			attribute.Int("prompt_len", len(prompt)),
			attribute.Int("max_tokens", opts.MaxTokens),
			attribute.Float64("temperature", opts.Temperature),
		),
	)
	defer span.End()

	var msgs []Message
	if g.system != "" {
		msgs = append(msgs, Message{Role: "system", Content: g.system})
	}
	msgs = append(msgs, Message{Role: "user", Content: prompt})

	start := time.Now()
	resp, err := g.provider.Chat(ctx, ChatRequest{
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = ErrEmptyResponse
	}
	recordCall(g.name, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("completion_tokens", resp.CompletionTokens))
	return strings.TrimSpace(resp.Content), nil
}
