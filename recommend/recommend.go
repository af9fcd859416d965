// Package recommend ranks the plants that suit a county and sun exposure.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"

	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/params"
	"github.com/joesaby/gardenqa/query"
	"github.com/joesaby/gardenqa/relax"
)

// MaxCandidates caps the number of recommendations returned.
const MaxCandidates = 8

// DefaultSunExposure scores candidates when no exposure is requested and
// the executor cannot report the value it bound.
const DefaultSunExposure = "Full Sun"

// Score weights. A native plant in full agreement with the requested sun
// exposure and rated 5 scores maxScore.
const (
	nativeBonus     = 10
	exactSunBonus   = 25
	partialSunBonus = 15
	baseline        = 30
	ratingWeight    = 3
	maxRating       = 5
	maxScore        = 80
)

// Conditions describe the garden to recommend for. Empty County and
// SunExposure fall back to the binder defaults. A nil NativeOnly applies
// no nativeness filter.
type Conditions struct {
	County      string   `json:"county,omitempty"`
	SunExposure string   `json:"sun_exposure,omitempty"`
	PlantTypes  []string `json:"plant_types,omitempty"`
	NativeOnly  *bool    `json:"native_only,omitempty"`
}

// Relation is a companion or antagonist link to another plant.
type Relation struct {
	Type  string `json:"type"`
	Plant string `json:"plant"`
	Notes string `json:"notes,omitempty"`
}

// ScoredCandidate is one recommendation.
type ScoredCandidate struct {
	Plant           graph.Plant `json:"plant"`
	Score           int         `json:"score"`
	MatchPercentage int         `json:"match_percentage"`
	Pollinators     []string    `json:"pollinators"`
	Relationships   []Relation  `json:"relationships"`
}

// Scorer ranks candidate plants read through an executor.
type Scorer struct {
	exec relax.Executor
}

// New creates a Scorer.
func New(exec relax.Executor) *Scorer {
	return &Scorer{exec: exec}
}

// CandidateQuery selects plants growing in a soil found in the county whose
// sun needs mention the requested exposure. withNative adds an exact match
// on nativeToIreland.
func CandidateQuery(withNative bool) *query.Query {
	q := query.Match(
		query.From(query.Node("c", graph.LabelCounty).With(graph.PropName, query.ParamCounty)).
			Out(graph.RelHasSoil, query.Node("s", graph.LabelSoilType)).
			In(graph.RelGrowsWellIn, query.Node("p", graph.LabelPlant)),
	).Where(query.ContainsFold(query.Prop("p", graph.PropSunNeeds), query.ParamSunExposure))
	if withNative {
		q.Where(query.Eq(query.Prop("p", graph.PropNativeToIreland), query.ParamNativeOnly))
	}
	return q.ReturnDistinct(
		query.As(query.V("p"), "plant"),
		query.As(query.Prop("p", graph.PropName), "name"),
	).OrderBy("name", false)
}

// PollinatorQuery lists the pollinators attracted by the named plants.
func PollinatorQuery() *query.Query {
	return query.Match(
		query.From(query.Node("p", graph.LabelPlant)).
			Out(graph.RelAttracts, query.Node("x", graph.LabelPollinatorType)),
	).
		Where(query.In(query.Prop("p", graph.PropName), query.ParamNames)).
		ReturnDistinct(
			query.As(query.Prop("p", graph.PropName), "plant"),
			query.As(query.Prop("x", graph.PropName), "pollinator"),
		).
		OrderBy("plant", false).
		OrderBy("pollinator", false)
}

// RelationQuery lists companion and antagonist links of the named plants
// in either direction.
func RelationQuery() *query.Query {
	return query.Match(
		query.From(query.Node("p", graph.LabelPlant)).
			Via(query.Rel(query.Either, graph.RelCompanionTo, graph.RelAntagonisticTo).As("r"),
				query.Node("o", graph.LabelPlant)),
	).
		Where(query.In(query.Prop("p", graph.PropName), query.ParamNames)).
		Return(
			query.As(query.Prop("p", graph.PropName), "plant"),
			query.As(query.TypeOf("r"), "relation"),
			query.As(query.Prop("o", graph.PropName), "other"),
			query.As(query.Prop("r", graph.PropNotes), "notes"),
		).
		OrderBy("plant", false).
		OrderBy("relation", false).
		OrderBy("other", false)
}

// ScorePlants returns at most MaxCandidates plants for the conditions,
// best first. Ties are ordered by name.
func (s *Scorer) ScorePlants(ctx context.Context, cond Conditions) ([]ScoredCandidate, error) {
	p := query.Params{}
	if c := strings.TrimSpace(cond.County); c != "" {
		p[query.ParamCounty] = c
	}
	if sun := strings.TrimSpace(cond.SunExposure); sun != "" {
		p[query.ParamSunExposure] = sun
	}
	if cond.NativeOnly != nil {
		p[query.ParamNativeOnly] = *cond.NativeOnly
	}

	recs, bound, err := s.candidates(ctx, CandidateQuery(cond.NativeOnly != nil), p)
	if err != nil {
		return nil, fmt.Errorf("recommend: candidates: %w", err)
	}

	// Score against the exposure the candidates were filtered by, which
	// may be a configured default.
	sun := strings.TrimSpace(cast.ToString(bound[query.ParamSunExposure]))
	if sun == "" {
		sun = DefaultSunExposure
	}

	out := make([]ScoredCandidate, 0, len(recs))
	for _, r := range recs {
		e, ok := r.Entity("plant")
		if !ok {
			continue
		}
		plant := graph.PlantFromEntity(e)
		if !MatchesTypes(plant, cond.PlantTypes) {
			continue
		}
		score := Score(plant, sun)
		out = append(out, ScoredCandidate{
			Plant:           plant,
			Score:           score,
			MatchPercentage: MatchPercentage(score),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Plant.Name < out[j].Plant.Name
	})
	if len(out) > MaxCandidates {
		out = out[:MaxCandidates]
	}
	slog.Debug("recommend: scored candidates",
		"county", cond.County, "sun", sun, "candidates", len(recs), "returned", len(out))
	if len(out) == 0 {
		return out, nil
	}

	if err := s.annotate(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// candidates runs q and returns its records with the parameters that were
// actually bound. A *params.Binder reports defaults it filled in.
func (s *Scorer) candidates(ctx context.Context, q *query.Query, p query.Params) ([]graph.Record, query.Params, error) {
	if b, ok := s.exec.(interface {
		Execute(context.Context, query.Template, query.Params) (*params.Result, error)
	}); ok {
		res, err := b.Execute(ctx, q, p)
		if err != nil {
			return nil, nil, err
		}
		return res.Records, res.Params, nil
	}
	recs, err := s.exec.Run(ctx, q, p)
	return recs, p, err
}

// annotate fills pollinators and relationships for the candidates. The two
// lookups are independent and run concurrently.
func (s *Scorer) annotate(ctx context.Context, cands []ScoredCandidate) error {
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.Plant.Name
	}
	p := query.Params{query.ParamNames: names}

	var pollRecs, relRecs []graph.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pollRecs, err = s.exec.Run(gctx, PollinatorQuery(), p)
		if err != nil {
			return fmt.Errorf("recommend: pollinators: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		relRecs, err = s.exec.Run(gctx, RelationQuery(), p)
		if err != nil {
			return fmt.Errorf("recommend: relationships: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	idx := make(map[string]int, len(cands))
	for i, c := range cands {
		idx[c.Plant.Name] = i
		cands[i].Pollinators = []string{}
		cands[i].Relationships = []Relation{}
	}
	for _, r := range pollRecs {
		i, ok := idx[r.String("plant")]
		if !ok {
			continue
		}
		name := r.String("pollinator")
		if name != "" && !slices.Contains(cands[i].Pollinators, name) {
			cands[i].Pollinators = append(cands[i].Pollinators, name)
		}
	}
	for _, r := range relRecs {
		i, ok := idx[r.String("plant")]
		if !ok {
			continue
		}
		cands[i].Relationships = append(cands[i].Relationships, Relation{
			Type:  r.String("relation"),
			Plant: r.String("other"),
			Notes: r.String("notes"),
		})
	}
	return nil
}

// Score computes the weighted score of a plant for a sun exposure.
func Score(p graph.Plant, sunExposure string) int {
	score := baseline
	if p.NativeToIreland {
		score += nativeBonus
	}
	if strings.EqualFold(strings.TrimSpace(p.SunNeeds), strings.TrimSpace(sunExposure)) {
		score += exactSunBonus
	} else {
		score += partialSunBonus
	}
	rating := min(max(p.SustainabilityRating, 0), maxRating)
	return score + rating*ratingWeight
}

// MatchPercentage maps a score onto 0..100.
func MatchPercentage(score int) int {
	pct := int(math.Round(float64(score) / maxScore * 100))
	return min(max(pct, 0), 100)
}

// MatchesTypes reports whether the plant belongs to any of the requested
// types. An empty list matches everything.
func MatchesTypes(p graph.Plant, types []string) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "vegetable", "vegetables", "fruit", "fruits":
			if p.HarvestSeason != "" {
				return true
			}
		case "flower", "flowers":
			if p.FloweringSeason != "" {
				return true
			}
		case "tree", "trees":
			if p.IsPerennial() && strings.Contains(p.Name, "Tree") {
				return true
			}
		case "":
		default:
			if strings.EqualFold(p.Category, t) {
				return true
			}
		}
	}
	return false
}

