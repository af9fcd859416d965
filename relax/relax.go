// Package relax recovers from over-constrained graph queries by retrying
// them under a fixed sequence of progressively looser parameter sets.
package relax

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/params"
	"github.com/joesaby/gardenqa/query"
)

// Executor runs a template with the given parameters. *params.Binder is
// the production implementation; it opens and releases a session per call.
type Executor interface {
	Run(ctx context.Context, t query.Template, p query.Params) ([]graph.Record, error)
}

// reporter is an Executor that can say what it actually ran. The binder
// answers a parameter mismatch with its safe query, and the trace must
// show that query rather than the requested one.
type reporter interface {
	Execute(ctx context.Context, t query.Template, p query.Params) (*params.Result, error)
}

// BuildFunc produces the query for a parameter set. Filters that are unset
// or nil must be left out of the query rather than matched against null.
type BuildFunc func(query.Params) *query.Query

// Attempt is one entry of the fallback trace.
type Attempt struct {
	Number      int          `json:"attempt"`
	Strategy    string       `json:"strategy"`
	Params      query.Params `json:"params"`
	ResultCount int          `json:"result_count"`
	Description string       `json:"description"`
	Query       string       `json:"query"`
	ElapsedMs   int64        `json:"elapsed_ms"`

	// Substituted marks an attempt answered by the safe query.
	Substituted bool `json:"substituted,omitempty"`
}

// Result is the outcome of ExecuteWithFallback. Success is false when
// every strategy came back empty; that is a normal return, not an error.
type Result struct {
	Success        bool           `json:"success"`
	FallbackUsed   bool           `json:"fallback_used"`
	Records        []graph.Record `json:"-"`
	Attempts       []Attempt      `json:"attempts"`
	OriginalParams query.Params   `json:"original_params"`
	FinalParams    query.Params   `json:"final_params"`

	// Substituted is set when Records came from the safe query instead of
	// the built one, so none of the filters were applied.
	Substituted bool `json:"substituted"`
}

// Summary renders the trace as one line per attempt.
func (r *Result) Summary() string {
	var b strings.Builder
	for _, a := range r.Attempts {
		fmt.Fprintf(&b, "Attempt %d: %s -> %d results", a.Number, a.Description, a.ResultCount)
		if a.Substituted {
			b.WriteString(" (filters not applied, safe query substituted)")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Engine runs the relaxation search.
type Engine struct {
	exec       Executor
	strategies []Strategy
}

// New creates an Engine using the standard strategy order.
func New(exec Executor) *Engine {
	return &Engine{exec: exec, strategies: Strategies()}
}

// ExecuteWithFallback runs build(initial) and, while the result is empty,
// each strategy in order applied to the initial parameters. It stops at
// the first non-empty result. Errors from the executor end the search
// immediately; relaxation only answers empty results.
func (e *Engine) ExecuteWithFallback(ctx context.Context, initial query.Params, build BuildFunc) (*Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "relax.Engine.ExecuteWithFallback",
		trace.WithAttributes(
			attribute.StringSlice("filters", initial.ActiveFilters()),
		),
	)
	defer span.End()

	res := &Result{OriginalParams: initial.Clone()}

	recs, err := e.attempt(ctx, res, "initial", "Initial query", initial, build)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcomesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if len(recs) > 0 {
		res.Success = true
		res.Records = recs
		res.FinalParams = initial.Clone()
		res.Substituted = res.Attempts[0].Substituted
		span.SetAttributes(attribute.Int("attempts", 1))
		outcomesTotal.WithLabelValues(outcome("exact", res.Substituted)).Inc()
		return res, nil
	}

	res.FallbackUsed = true
	final := initial.Clone()
	for _, s := range e.strategies {
		p := s.Apply(initial)
		final = p
		recs, err := e.attempt(ctx, res, s.Name, s.Description, p, build)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			outcomesTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("relax: %s: %w", s.Name, err)
		}
		if len(recs) > 0 {
			res.Success = true
			res.Records = recs
			res.FinalParams = p
			res.Substituted = res.Attempts[len(res.Attempts)-1].Substituted
			span.SetAttributes(attribute.Int("attempts", len(res.Attempts)), attribute.String("strategy", s.Name))
			outcomesTotal.WithLabelValues(outcome("relaxed", res.Substituted)).Inc()
			slog.Info("relax: found results after relaxation",
				"strategy", s.Name, "attempts", len(res.Attempts), "results", len(recs))
			return res, nil
		}
	}

	res.FinalParams = final
	span.SetAttributes(attribute.Int("attempts", len(res.Attempts)))
	outcomesTotal.WithLabelValues("exhausted").Inc()
	slog.Info("relax: all strategies exhausted", "attempts", len(res.Attempts))
	return res, nil
}

func (e *Engine) attempt(ctx context.Context, res *Result, name, desc string, p query.Params, build BuildFunc) ([]graph.Record, error) {
	q := build(p)
	start := time.Now()
	ran, err := e.run(ctx, q, p)
	if err != nil {
		return nil, err
	}
	attemptsTotal.WithLabelValues(name).Inc()
	a := Attempt{
		Number:      len(res.Attempts) + 1,
		Strategy:    name,
		Params:      p.Clone(),
		ResultCount: len(ran.Records),
		Description: desc,
		Query:       ran.Query,
		Substituted: ran.Substituted,
		ElapsedMs:   time.Since(start).Milliseconds(),
	}
	res.Attempts = append(res.Attempts, a)
	slog.Debug("relax: attempt",
		"attempt", a.Number, "strategy", name, "filters", p.ActiveFilters(),
		"results", a.ResultCount, "substituted", a.Substituted)
	return ran.Records, nil
}

// run executes q and reports the query text that actually produced the
// records.
func (e *Engine) run(ctx context.Context, q *query.Query, p query.Params) (*params.Result, error) {
	if r, ok := e.exec.(reporter); ok {
		res, err := r.Execute(ctx, q, p)
		if err != nil {
			return nil, err
		}
		if res.Query == "" {
			res.Query = q.Cypher()
		}
		return res, nil
	}
	recs, err := e.exec.Run(ctx, q, p)
	if err != nil {
		return nil, err
	}
	return &params.Result{Records: recs, Params: p, Query: q.Cypher()}, nil
}

func outcome(name string, substituted bool) string {
	if substituted {
		return "substituted"
	}
	return name
}
