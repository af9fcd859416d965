// Package params binds query parameters safely: every parameter a template
// references is bound before execution, missing ones come from a table of
// semantic defaults, and a binding mismatch reported by the store is
// answered once with a pre-verified safe query.
package params

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/query"
	"github.com/joesaby/gardenqa/store"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Defaults returns a fresh copy of the built-in defaults table.
func Defaults() (map[string]any, error) {
	var d map[string]any
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		return nil, fmt.Errorf("parsing defaults.yaml: %w", err)
	}
	return d, nil
}

// Warning records a parameter that was bound from its default.
type Warning struct {
	Param   string `json:"param"`
	Default any    `json:"default"`
}

func (w Warning) String() string {
	return fmt.Sprintf("parameter %q not supplied, using default %v", w.Param, w.Default)
}

// SafeQuery is the pre-verified substitute: plants filtered by sun exposure
// only. It references nothing but sunExposure, which always has a default.
// Rows carry the plant node and its name, ordered by name on every backend.
func SafeQuery() *query.Query {
	return query.Match(query.From(query.Node("p", graph.LabelPlant))).
		Where(query.ContainsFold(query.Prop("p", graph.PropSunNeeds), query.ParamSunExposure)).
		Return(
			query.As(query.V("p"), "plant"),
			query.As(query.Prop("p", graph.PropName), "name"),
		).
		OrderBy("name", false).
		Take(25)
}

// Result is the outcome of Execute.
type Result struct {
	Records  []graph.Record `json:"-"`
	Params   query.Params   `json:"params"`
	Warnings []Warning      `json:"warnings,omitempty"`
	// Substituted is set when the safe query ran in place of the
	// requested one; Cause holds the mismatch that triggered it.
	Substituted bool   `json:"substituted"`
	Cause       error  `json:"-"`
	Query       string `json:"query"`
}

// Binder binds and executes templates against a store.
type Binder struct {
	client   store.Client
	defaults map[string]any
	safe     *query.Query
}

// Option configures a Binder.
type Option func(*Binder)

// WithDefaults overrides or extends the defaults table.
func WithDefaults(d map[string]any) Option {
	return func(b *Binder) {
		maps.Copy(b.defaults, d)
	}
}

// New creates a Binder over client.
func New(client store.Client, opts ...Option) (*Binder, error) {
	d, err := Defaults()
	if err != nil {
		return nil, err
	}
	b := &Binder{client: client, defaults: d, safe: SafeQuery()}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Bind resolves every parameter t references. Supplied values win, an
// explicit nil included; absent names take their default with a warning.
// A name with no default yields a *MissingParameterError.
func (b *Binder) Bind(t query.Template, supplied query.Params) (query.Params, []Warning, error) {
	bound := make(query.Params)
	var warnings []Warning
	for _, name := range t.Params() {
		if v, ok := supplied[name]; ok {
			bound[name] = v
			continue
		}
		d, ok := b.defaults[name]
		if !ok {
			return nil, nil, &MissingParameterError{Name: name}
		}
		d = cloneValue(d)
		bound[name] = d
		warnings = append(warnings, Warning{Param: name, Default: d})
		defaultsApplied.WithLabelValues(name).Inc()
		slog.Warn("params: using default", "param", name, "default", d)
	}
	return bound, warnings, nil
}

// Execute binds and runs t on a fresh session. A binding mismatch from the
// store is caught once: the safe query runs instead and the result is
// marked Substituted. Other rejections surface as *MalformedQueryError.
func (b *Binder) Execute(ctx context.Context, t query.Template, supplied query.Params) (*Result, error) {
	bound, warnings, err := b.Bind(t, supplied)
	if err != nil {
		return nil, err
	}

	recs, err := b.run(ctx, t, bound)
	switch {
	case err == nil:
		return &Result{Records: recs, Params: bound, Warnings: warnings, Query: t.Cypher()}, nil
	case errors.Is(err, store.ErrParameterMismatch):
		return b.substitute(ctx, supplied, err)
	case errors.Is(err, store.ErrSyntax):
		return nil, &MalformedQueryError{Query: t.Cypher(), Err: err}
	default:
		return nil, err
	}
}

// Run executes t and returns only the records.
func (b *Binder) Run(ctx context.Context, t query.Template, supplied query.Params) ([]graph.Record, error) {
	res, err := b.Execute(ctx, t, supplied)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

func (b *Binder) substitute(ctx context.Context, supplied query.Params, cause error) (*Result, error) {
	substitutions.Inc()
	slog.Warn("params: binding mismatch, substituting safe query", "error", cause)

	bound, warnings, err := b.Bind(b.safe, supplied)
	if err != nil {
		return nil, err
	}
	recs, err := b.run(ctx, b.safe, bound)
	if err != nil {
		if errors.Is(err, store.ErrParameterMismatch) || errors.Is(err, store.ErrSyntax) {
			return nil, &MalformedQueryError{Query: b.safe.Cypher(), Err: err}
		}
		return nil, err
	}
	return &Result{
		Records:     recs,
		Params:      bound,
		Warnings:    warnings,
		Substituted: true,
		Cause:       cause,
		Query:       b.safe.Cypher(),
	}, nil
}

// run executes on its own session, refusing to send a query that
// references an unbound parameter.
func (b *Binder) run(ctx context.Context, t query.Template, bound query.Params) ([]graph.Record, error) {
	if missing := store.MissingParams(t, bound); len(missing) > 0 {
		return nil, &MissingParameterError{Name: missing[0]}
	}
	sess, err := b.client.Session(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	return sess.Run(ctx, t, bound)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		return slices.Clone(t)
	case map[string]any:
		return maps.Clone(t)
	}
	return v
}
