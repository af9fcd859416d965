// Package gardenqa answers natural-language gardening questions from a
// property graph of plants, counties, soils and seasons. It extracts known
// entities from the question, binds them as query parameters, relaxes the
// query until the graph has something to say and hands the facts to a text
// generator. It also scores plant recommendations for given conditions.
package gardenqa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joesaby/gardenqa/answer"
	"github.com/joesaby/gardenqa/extract"
	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/llm"
	"github.com/joesaby/gardenqa/params"
	"github.com/joesaby/gardenqa/recommend"
	"github.com/joesaby/gardenqa/retrieval"
	"github.com/joesaby/gardenqa/seed"
	"github.com/joesaby/gardenqa/store"
	"github.com/joesaby/gardenqa/store/neo4jstore"
)

// Engine is the main entry point. It is safe for concurrent use.
type Engine struct {
	cfg    Config
	client store.Client
	// local is the embedded store, nil when the graph lives in Neo4j.
	local *store.Store

	binder      *params.Binder
	retriever   *retrieval.Engine
	recommender *recommend.Scorer
	answerer    *answer.Engine // nil when generation is disabled
	embedder    retrieval.Embedder

	closed atomic.Bool
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	client   store.Client
	gen      llm.Generator
	embedder retrieval.Embedder
}

// WithClient uses client instead of opening the configured store. The
// engine takes ownership and closes it.
func WithClient(client store.Client) Option {
	return func(o *options) { o.client = client }
}

// WithGenerator uses gen for answers instead of the configured chat
// provider.
func WithGenerator(gen llm.Generator) Option {
	return func(o *options) { o.gen = gen }
}

// WithEmbedder uses emb for similarity search instead of the configured
// embedding provider.
func WithEmbedder(emb retrieval.Embedder) Option {
	return func(o *options) { o.embedder = emb }
}

// New opens the configured store and LLM providers and wires the
// pipeline. The caller owns the engine and must Close it.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{cfg: cfg, client: o.client}
	if e.client == nil {
		if err := e.openStore(); err != nil {
			return nil, err
		}
	} else if s, ok := o.client.(*store.Store); ok {
		e.local = s
	}

	gen := o.gen
	if gen == nil && cfg.Chat.Provider != "" {
		chat, err := llm.NewProvider(cfg.Chat.provider())
		if err != nil {
			e.client.Close()
			return nil, fmt.Errorf("creating chat provider: %w", err)
		}
		gen = llm.NewGenerator(chat, cfg.Chat.Provider, answer.SystemPrompt)
	}
	e.embedder = o.embedder
	if e.embedder == nil && cfg.Embedding.Provider != "" {
		emb, err := llm.NewProvider(cfg.Embedding.provider())
		if err != nil {
			e.client.Close()
			return nil, fmt.Errorf("creating embedding provider: %w", err)
		}
		e.embedder = emb
	}

	var binderOpts []params.Option
	if len(cfg.ParamDefaults) > 0 {
		binderOpts = append(binderOpts, params.WithDefaults(cfg.ParamDefaults))
	}
	binder, err := params.New(e.client, binderOpts...)
	if err != nil {
		e.client.Close()
		return nil, err
	}
	extractor, err := extract.New(e.client)
	if err != nil {
		e.client.Close()
		return nil, err
	}

	retrievalOpts := []retrieval.Option{retrieval.WithConfig(cfg.Retrieval)}
	// Similarity search needs the embedded vector index.
	if e.local != nil && e.embedder != nil {
		retrievalOpts = append(retrievalOpts, retrieval.WithVectorSearch(e.local, e.embedder))
	}

	e.binder = binder
	e.retriever = retrieval.New(extractor, binder, retrievalOpts...)
	e.recommender = recommend.New(binder)
	if gen != nil {
		e.answerer = answer.New(gen, cfg.Answer)
	}

	slog.Info("gardenqa: engine ready",
		"driver", cfg.Store.Driver,
		"generation", e.answerer != nil,
		"vector_search", e.local != nil && e.embedder != nil)
	return e, nil
}

func (e *Engine) openStore() error {
	switch e.cfg.Store.Driver {
	case DriverNeo4j:
		c, err := neo4jstore.New(neo4jstore.Options{
			URI:            e.cfg.Store.URI,
			Database:       e.cfg.Store.Database,
			Username:       e.cfg.Store.Username,
			Password:       e.cfg.Store.Password,
			MaxConnections: e.cfg.Store.MaxConnections,
		})
		if err != nil {
			return fmt.Errorf("opening neo4j: %w", err)
		}
		e.client = c
	default:
		s, err := store.New(e.cfg.Store.resolveDBPath(), e.cfg.Store.EmbeddingDim)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		e.client, e.local = s, s
	}
	return nil
}

// AskOption configures a single question.
type AskOption func(*askOptions)

type askOptions struct {
	hints      retrieval.Hints
	noGenerate bool
}

// WithContext supplies structured hints that override what is extracted
// from the question. Recognised keys: county, plantType, soilType, season
// and growingProperty (parameter names such as countyName also work).
func WithContext(ctx map[string]string) AskOption {
	return func(o *askOptions) {
		for k, v := range ctx {
			switch strings.ToLower(k) {
			case "county", "countyname":
				o.hints.County = v
			case "planttype", "plant_type":
				o.hints.PlantType = v
			case "soiltype", "soil_type", "soil":
				o.hints.SoilType = v
			case "season":
				o.hints.Season = v
			case "growingproperty", "growing_property", "property":
				o.hints.GrowingProperty = v
			}
		}
	}
}

// WithoutGeneration returns the retrieved facts without calling the text
// generator.
func WithoutGeneration() AskOption {
	return func(o *askOptions) { o.noGenerate = true }
}

// AnswerQuestion extracts entities, runs the relaxed graph search and
// generates an answer. Finding nothing is not an error: the answer's
// Trace.Success is false and the text is general advice.
func (e *Engine) AnswerQuestion(ctx context.Context, question string, opts ...AskOption) (*answer.Answer, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	var o askOptions
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	resp, err := e.retriever.Retrieve(ctx, question, o.hints)
	if err != nil {
		return nil, fmt.Errorf("retrieving facts: %w", err)
	}

	if o.noGenerate || e.answerer == nil {
		return answer.FromRetrieval(resp), nil
	}
	a, err := e.answerer.Compose(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	slog.Info("gardenqa: question answered",
		"attempts", len(resp.Trace.Attempts),
		"success", resp.Trace.Success,
		"confidence", fmt.Sprintf("%.2f", a.Confidence),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return a, nil
}

// RecommendPlants ranks plants for the given conditions. Empty county and
// sun exposure fall back to the parameter defaults.
func (e *Engine) RecommendPlants(ctx context.Context, cond recommend.Conditions) ([]recommend.ScoredCandidate, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	return e.recommender.ScorePlants(ctx, cond)
}

// Seed loads a graph file (.json, .yaml or .xlsx) into the embedded store.
func (e *Engine) Seed(ctx context.Context, path string) (seed.Stats, error) {
	if e.local == nil {
		return seed.Stats{}, ErrReadOnlyStore
	}
	g, err := seed.ReadFile(path)
	if err != nil {
		return seed.Stats{}, err
	}
	return seed.Load(ctx, e.local, g)
}

// IndexEmbeddings embeds every plant that has no vector yet.
func (e *Engine) IndexEmbeddings(ctx context.Context) (int, error) {
	if e.local == nil {
		return 0, ErrReadOnlyStore
	}
	if e.embedder == nil {
		return 0, ErrNoEmbedder
	}
	return seed.IndexEmbeddings(ctx, e.local, e.embedder, graph.LabelPlant, seed.DefaultBatchSize)
}

// Health checks the store is reachable.
func (e *Engine) Health(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.client.VerifyConnectivity(ctx)
}

// Stats summarises the embedded graph. It is unavailable on Neo4j.
func (e *Engine) Stats(ctx context.Context) (*store.Stats, error) {
	if e.local == nil {
		return nil, ErrReadOnlyStore
	}
	return e.local.Stats(ctx)
}

// Close releases the store. It is safe to call more than once.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	return e.client.Close()
}
