// Package retrieval turns a gardening question into graph facts: it
// extracts known entities, derives query parameters, runs the relaxation
// search and, when an embedder is configured, fuses in plants found by
// vector similarity.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joesaby/gardenqa/extract"
	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/query"
	"github.com/joesaby/gardenqa/relax"
	"github.com/joesaby/gardenqa/store"
)

// Embedder produces vectors for texts. llm.Provider satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds retrieval engine configuration.
type Config struct {
	WeightGraph  float64 `json:"weight_graph" yaml:"weight_graph"`
	WeightVector float64 `json:"weight_vector" yaml:"weight_vector"`
	SemanticK    int     `json:"semantic_k" yaml:"semantic_k"`
}

// DefaultConfig favours the graph over vector similarity.
func DefaultConfig() Config {
	return Config{WeightGraph: 1.0, WeightVector: 0.5, SemanticK: 5}
}

// Hints are caller-supplied filters. Non-empty fields override what the
// extractor found.
type Hints struct {
	County          string `json:"county,omitempty"`
	PlantType       string `json:"plant_type,omitempty"`
	SoilType        string `json:"soil_type,omitempty"`
	Season          string `json:"season,omitempty"`
	GrowingProperty string `json:"growing_property,omitempty"`
}

// Response is everything retrieved for one question.
type Response struct {
	Question string             `json:"question"`
	Entities *extract.EntitySet `json:"entities"`
	Params   query.Params       `json:"params"`
	Facts    []string           `json:"facts"`
	Plants   []RankedPlant      `json:"plants"`
	Trace    *relax.Result      `json:"trace"`
	// VectorResults is the number of plants found by similarity search.
	VectorResults int   `json:"vector_results"`
	ElapsedMs     int64 `json:"elapsed_ms"`
}

// Engine performs retrieval.
type Engine struct {
	extractor *extract.Extractor
	exec      relax.Executor
	relax     *relax.Engine
	index     store.VectorIndex
	embedder  Embedder
	cfg       Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithVectorSearch enables similarity search over plant embeddings.
func WithVectorSearch(index store.VectorIndex, embedder Embedder) Option {
	return func(e *Engine) {
		e.index = index
		e.embedder = embedder
	}
}

// WithConfig overrides the default configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// New creates a retrieval engine. exec runs every graph query; in
// production it is a *params.Binder.
func New(extractor *extract.Extractor, exec relax.Executor, opts ...Option) *Engine {
	e := &Engine{
		extractor: extractor,
		exec:      exec,
		relax:     relax.New(exec),
		cfg:       DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve gathers the graph facts relevant to question. A search that
// finds nothing after relaxation is a normal return with Trace.Success
// false; store failures are returned as errors.
func (e *Engine) Retrieve(ctx context.Context, question string, hints Hints) (*Response, error) {
	start := time.Now()

	ents, err := e.extractor.Extract(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("extracting entities: %w", err)
	}

	params := BuildParams(ents, hints, e.extractor.Static(), question)
	seasonRel := graph.RelPlantIn
	if ents.HasActivity("harvest") {
		seasonRel = graph.RelHarvestIn
	}

	type vecResult struct {
		hits []store.Similar
		err  error
	}
	vecCh := make(chan vecResult, 1)
	go func() {
		hits, err := e.vectorSearch(ctx, question)
		vecCh <- vecResult{hits, err}
	}()

	trace, err := e.relax.ExecuteWithFallback(ctx, params, PlantQuery(seasonRel))
	vec := <-vecCh
	if err != nil {
		return nil, err
	}
	if vec.err != nil {
		slog.Warn("retrieval: vector search failed", "error", vec.err)
	}

	resp := &Response{
		Question:      question,
		Entities:      ents,
		Params:        params,
		Trace:         trace,
		VectorResults: len(vec.hits),
	}

	resp.Facts = append(resp.Facts, plantFacts(trace.Records, trace.FinalParams)...)
	if len(ents.Plants) > 0 {
		details, err := e.exec.Run(ctx, PlantDetailsQuery(), query.Params{query.ParamNames: ents.Plants})
		if err != nil {
			return nil, fmt.Errorf("plant details: %w", err)
		}
		resp.Facts = append(resp.Facts, relationFacts(details)...)
	}

	resp.Plants = fuseRRF(graphNames(trace.Records), vec.hits, e.cfg.WeightGraph, e.cfg.WeightVector, MaxPlants)
	if !trace.Success {
		for _, h := range vec.hits {
			resp.Facts = append(resp.Facts, similarFact(h))
		}
	}

	resp.ElapsedMs = time.Since(start).Milliseconds()
	slog.Debug("retrieval: complete",
		"entities", ents.Terms(),
		"attempts", len(trace.Attempts),
		"success", trace.Success,
		"facts", len(resp.Facts),
		"vector_results", len(vec.hits),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return resp, nil
}

// vectorSearch embeds the question and looks up similar plants. It is a
// no-op when vector search is not configured.
func (e *Engine) vectorSearch(ctx context.Context, question string) ([]store.Similar, error) {
	if e.index == nil || e.embedder == nil || e.cfg.SemanticK <= 0 {
		return nil, nil
	}
	embeddings, err := e.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return e.index.SimilarNodes(ctx, embeddings[0], graph.LabelPlant, e.cfg.SemanticK)
}

// BuildParams derives query parameters from extracted entities. The first
// match in each category wins; a month implies its season. Hints override.
// Unset filters are left out entirely.
func BuildParams(ents *extract.EntitySet, hints Hints, static *extract.StaticVocabulary, question string) query.Params {
	p := query.Params{}
	set := func(key, extracted, hint string) {
		v := strings.TrimSpace(hint)
		if v == "" {
			v = extracted
		}
		if v != "" {
			p[key] = v
		}
	}

	season := first(ents.Seasons)
	if season == "" && static != nil {
		season = static.SeasonOf(first(ents.Months))
	}
	set(query.ParamCounty, first(ents.Counties), hints.County)
	set(query.ParamPlantType, first(ents.PlantTypes), hints.PlantType)
	set(query.ParamSoilType, first(ents.SoilTypes), hints.SoilType)
	set(query.ParamSeason, season, hints.Season)
	set(query.ParamGrowingProperty, GrowingProperty(question), hints.GrowingProperty)
	return p
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func graphNames(recs []graph.Record) []string {
	var names []string
	for _, r := range recs {
		if n := r.String("name"); n != "" {
			names = append(names, n)
		}
	}
	return names
}
