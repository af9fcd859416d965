// Package answer turns retrieved graph facts into a final answer through
// a text generator.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joesaby/gardenqa/extract"
	"github.com/joesaby/gardenqa/llm"
	"github.com/joesaby/gardenqa/relax"
	"github.com/joesaby/gardenqa/retrieval"
)

// Config holds answer generation settings.
type Config struct {
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxFacts    int     `json:"max_facts" yaml:"max_facts"`
}

// DefaultConfig returns the default generation settings.
func DefaultConfig() Config {
	return Config{MaxTokens: 600, Temperature: 0.2, MaxFacts: 40}
}

// Answer is the output of the question answering pipeline.
type Answer struct {
	Question   string                  `json:"question"`
	Text       string                  `json:"text,omitempty"`
	Confidence float64                 `json:"confidence"`
	Entities   *extract.EntitySet      `json:"entities"`
	Facts      []string                `json:"facts"`
	Plants     []retrieval.RankedPlant `json:"plants"`
	Relaxed    []string                `json:"relaxed,omitempty"`
	Trace      *relax.Result           `json:"trace"`
	Steps      []Step                  `json:"steps"`
	ElapsedMs  int64                   `json:"elapsed_ms"`
}

// Step records one stage of answering.
type Step struct {
	Action    string   `json:"action"`
	Output    string   `json:"output,omitempty"`
	Prompt    string   `json:"prompt,omitempty"` // full prompt sent to the generator
	ElapsedMs int64    `json:"elapsed_ms,omitempty"`
	Issues    []string `json:"issues,omitempty"`
}

// Engine composes answers.
type Engine struct {
	gen llm.Generator
	cfg Config
}

// New creates an answer engine. Zero config fields take defaults.
func New(gen llm.Generator, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MaxFacts == 0 {
		cfg.MaxFacts = def.MaxFacts
	}
	return &Engine{gen: gen, cfg: cfg}
}

// FromRetrieval builds an answer with no generated text.
func FromRetrieval(resp *retrieval.Response) *Answer {
	a := &Answer{
		Question:   resp.Question,
		Confidence: TraceConfidence(resp.Trace),
		Entities:   resp.Entities,
		Facts:      resp.Facts,
		Plants:     resp.Plants,
		Relaxed:    RelaxedFilters(resp.Trace),
		Trace:      resp.Trace,
		ElapsedMs:  resp.ElapsedMs,
	}
	a.Steps = append(a.Steps, Step{
		Action:    "retrieval",
		Output:    fmt.Sprintf("%d facts", len(resp.Facts)),
		ElapsedMs: resp.ElapsedMs,
	})
	return a
}

// Compose generates the answer text for a retrieval response. Generation
// failures are returned; an empty search is not a failure and produces a
// general answer.
func (e *Engine) Compose(ctx context.Context, resp *retrieval.Response) (*Answer, error) {
	a := FromRetrieval(resp)

	prompt := BuildPrompt(resp, e.cfg.MaxFacts)
	slog.Info("answer: generating", "facts", len(resp.Facts), "prompt_len", len(prompt))
	start := time.Now()
	text, err := e.gen.Generate(ctx, prompt, llm.GenerateOptions{
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}
	elapsed := time.Since(start)

	issues := review(text, resp)
	a.Text = text
	a.Confidence = adjust(a.Confidence, issues)
	a.Steps = append(a.Steps, Step{
		Action:    "generation",
		Output:    text,
		Prompt:    prompt,
		ElapsedMs: elapsed.Milliseconds(),
		Issues:    issues,
	})
	a.ElapsedMs += elapsed.Milliseconds()

	slog.Info("answer: complete",
		"confidence", fmt.Sprintf("%.2f", a.Confidence),
		"issues", len(issues),
		"elapsed", elapsed.Round(time.Millisecond))
	return a, nil
}
