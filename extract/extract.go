// Package extract finds known gardening terms in free-text questions. It is
// dictionary lookup: node names loaded from the graph plus a small static
// vocabulary, matched as case-insensitive substrings.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/query"
	"github.com/joesaby/gardenqa/store"
)

// GraphLabels are the node labels whose names form the lookup vocabulary.
var GraphLabels = []string{graph.LabelPlant, graph.LabelSoilType, graph.LabelCounty, graph.LabelMonth}

// EntitySet groups the terms found in a question. Each list follows
// vocabulary order and holds no duplicates.
type EntitySet struct {
	Plants     []string `json:"plants"`
	SoilTypes  []string `json:"soil_types"`
	Counties   []string `json:"counties"`
	Seasons    []string `json:"seasons"`
	Months     []string `json:"months"`
	Activities []string `json:"activities,omitempty"`
	PlantTypes []string `json:"plant_types,omitempty"`
}

// IsEmpty reports whether no graph term or season was found.
func (s *EntitySet) IsEmpty() bool {
	return len(s.Plants) == 0 && len(s.SoilTypes) == 0 && len(s.Counties) == 0 &&
		len(s.Seasons) == 0 && len(s.Months) == 0
}

// Terms returns every graph term and season, in category order.
func (s *EntitySet) Terms() []string {
	var out []string
	for _, l := range [][]string{s.Plants, s.SoilTypes, s.Counties, s.Seasons, s.Months} {
		out = append(out, l...)
	}
	return out
}

// HasActivity reports whether the question mentions an activity.
func (s *EntitySet) HasActivity(name string) bool {
	return slices.Contains(s.Activities, name)
}

// Extractor matches questions against the graph vocabulary.
type Extractor struct {
	client store.Client
	static *StaticVocabulary
}

// New creates an extractor that loads node names through client.
func New(client store.Client) (*Extractor, error) {
	v, err := LoadStaticVocabulary()
	if err != nil {
		return nil, err
	}
	return &Extractor{client: client, static: v}, nil
}

// Static returns the static vocabulary in use.
func (e *Extractor) Static() *StaticVocabulary { return e.static }

// Extract returns the known terms found in question. Store failures are
// returned, never an empty set.
func (e *Extractor) Extract(ctx context.Context, question string) (*EntitySet, error) {
	vocab, err := e.LoadVocabulary(ctx)
	if err != nil {
		return nil, err
	}

	q := fold(question)
	set := &EntitySet{
		Plants:    match(q, vocab[graph.LabelPlant]),
		SoilTypes: match(q, vocab[graph.LabelSoilType]),
		Counties:  match(q, vocab[graph.LabelCounty]),
		Months:    match(q, vocab[graph.LabelMonth]),
	}
	set.Seasons = matchTerms(q, e.static.Seasons)
	set.Activities = matchTerms(q, e.static.Activities)
	set.PlantTypes = matchTerms(q, e.static.PlantTypes)

	slog.Debug("extract: entities",
		"plants", set.Plants,
		"soil_types", set.SoilTypes,
		"counties", set.Counties,
		"seasons", set.Seasons,
		"months", set.Months,
	)
	return set, nil
}

// LoadVocabulary reads the node names of every GraphLabels label. Each
// label is read on its own session, concurrently.
func (e *Extractor) LoadVocabulary(ctx context.Context) (map[string][]string, error) {
	results := make([][]string, len(GraphLabels))
	g, gctx := errgroup.WithContext(ctx)
	for i, label := range GraphLabels {
		g.Go(func() error {
			names, err := e.namesOf(gctx, label)
			if err != nil {
				return fmt.Errorf("loading %s vocabulary: %w", label, err)
			}
			results[i] = names
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	vocab := make(map[string][]string, len(GraphLabels))
	for i, label := range GraphLabels {
		vocab[label] = results[i]
	}
	return vocab, nil
}

func (e *Extractor) namesOf(ctx context.Context, label string) ([]string, error) {
	sess, err := e.client.Session(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	q := query.Match(query.From(query.Node("n", label))).
		ReturnDistinct(query.As(query.Prop("n", graph.PropName), "name")).
		OrderBy("name", false)

	recs, err := sess.Run(ctx, q, query.Params{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(recs))
	for _, r := range recs {
		if n := r.String("name"); n != "" {
			names = append(names, n)
		}
	}
	return names, nil
}

// fold normalises text for comparison: compatibility composition followed
// by Unicode case folding.
func fold(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}

func match(q string, terms []string) []string {
	var out []string
	for _, t := range terms {
		ft := strings.TrimSpace(fold(t))
		if ft == "" || !strings.Contains(q, ft) {
			continue
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func matchTerms(q string, terms []Term) []string {
	var out []string
	for _, t := range terms {
		if len(match(q, append([]string{t.Name}, t.Terms...))) > 0 && !slices.Contains(out, t.Name) {
			out = append(out, t.Name)
		}
	}
	return out
}
