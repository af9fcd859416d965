package relax

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/internal/gardentest"
	"github.com/joesaby/gardenqa/params"
	"github.com/joesaby/gardenqa/query"
	"github.com/joesaby/gardenqa/store"
)

type execFunc func(ctx context.Context, t query.Template, p query.Params) ([]graph.Record, error)

func (f execFunc) Run(ctx context.Context, t query.Template, p query.Params) ([]graph.Record, error) {
	return f(ctx, t, p)
}

// counting wraps fn and records every parameter set it sees.
type counting struct {
	fn    func(p query.Params) ([]graph.Record, error)
	calls []query.Params
}

func (c *counting) Run(ctx context.Context, t query.Template, p query.Params) ([]graph.Record, error) {
	c.calls = append(c.calls, p.Clone())
	return c.fn(p)
}

func build(p query.Params) *query.Query {
	return query.Match(query.From(query.Node("p", graph.LabelPlant))).
		Return(query.As(query.V("p"), "plant"))
}

func sligo() query.Params {
	return query.Params{
		query.ParamCounty:          "Sligo",
		query.ParamPlantType:       "Vegetable",
		query.ParamSoilType:        "Clay",
		query.ParamSeason:          "Winter",
		query.ParamGrowingProperty: graph.PropSunNeeds,
	}
}

func hit() []graph.Record {
	return []graph.Record{gardentest.PlantRecord("Hawthorn Tree", nil)}
}

func TestStrategyOrder(t *testing.T) {
	var names []string
	for _, s := range Strategies() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		"drop_soil", "drop_plant_type", "drop_season",
		"county_plant_type", "county_soil", "county_only",
		"drop_county", "plant_type_only", "minimal",
	}, names)
}

func TestStrategiesArePure(t *testing.T) {
	for _, s := range Strategies() {
		in := sligo()
		out := s.Apply(in)
		assert.Equal(t, sligo(), in, s.Name)
		assert.Equal(t, graph.PropSunNeeds, out[query.ParamGrowingProperty], s.Name)
	}
}

func TestStrategyActiveFilters(t *testing.T) {
	want := map[string][]string{
		"drop_soil":         {query.ParamCounty, query.ParamPlantType, query.ParamSeason},
		"drop_plant_type":   {query.ParamCounty, query.ParamSoilType, query.ParamSeason},
		"drop_season":       {query.ParamCounty, query.ParamPlantType, query.ParamSoilType},
		"county_plant_type": {query.ParamCounty, query.ParamPlantType},
		"county_soil":       {query.ParamCounty, query.ParamSoilType},
		"county_only":       {query.ParamCounty},
		"drop_county":       {query.ParamPlantType, query.ParamSoilType, query.ParamSeason},
		"plant_type_only":   {query.ParamPlantType},
		"minimal":           nil,
	}
	for _, s := range Strategies() {
		assert.Equal(t, want[s.Name], s.Apply(sligo()).ActiveFilters(), s.Name)
	}
}

func TestMinimalKeepsNonFilterParams(t *testing.T) {
	in := sligo()
	in[query.ParamLimit] = 5
	out := Strategies()[8].Apply(in)
	assert.Empty(t, out.ActiveFilters())
	assert.Equal(t, 5, out[query.ParamLimit])
	assert.Equal(t, graph.PropSunNeeds, out[query.ParamGrowingProperty])
}

func TestInitialHit(t *testing.T) {
	c := &counting{fn: func(p query.Params) ([]graph.Record, error) { return hit(), nil }}

	res, err := New(c).ExecuteWithFallback(context.Background(), sligo(), build)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.FallbackUsed)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, 1, res.Attempts[0].Number)
	assert.Equal(t, 1, res.Attempts[0].ResultCount)
	assert.Equal(t, sligo(), res.FinalParams)
	assert.Len(t, c.calls, 1)
}

func TestSligoScenario(t *testing.T) {
	c := &counting{fn: func(p query.Params) ([]graph.Record, error) {
		if p.Active(query.ParamCounty) && p.Active(query.ParamSoilType) &&
			p.Active(query.ParamSeason) && !p.Active(query.ParamPlantType) {
			return hit(), nil
		}
		return nil, nil
	}}

	res, err := New(c).ExecuteWithFallback(context.Background(), sligo(), build)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.FallbackUsed)
	require.Len(t, res.Attempts, 3)
	assert.Equal(t, "drop_plant_type", res.Attempts[2].Strategy)
	assert.Equal(t, []int{0, 0, 1}, []int{res.Attempts[0].ResultCount, res.Attempts[1].ResultCount, res.Attempts[2].ResultCount})
	assert.Nil(t, res.FinalParams[query.ParamPlantType])
	assert.Equal(t, sligo(), res.OriginalParams)
	assert.Len(t, res.Records, 1)
	assert.Contains(t, res.Summary(), "Attempt 3: Removed plant type constraint -> 1 results")
}

func TestExhaustion(t *testing.T) {
	c := &counting{fn: func(p query.Params) ([]graph.Record, error) { return nil, nil }}

	res, err := New(c).ExecuteWithFallback(context.Background(), sligo(), build)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.FallbackUsed)
	assert.Len(t, c.calls, 1+len(Strategies()))
	assert.Len(t, res.Attempts, 10)
	assert.Equal(t, sligo(), res.OriginalParams)
	assert.Empty(t, res.FinalParams.ActiveFilters())
	assert.Equal(t, graph.PropSunNeeds, res.FinalParams[query.ParamGrowingProperty])

	for i, a := range res.Attempts {
		assert.Equal(t, i+1, a.Number)
		assert.NotEmpty(t, a.Query)
		assert.NotEmpty(t, a.Description)
	}
}

func TestAttemptsNeverAddConstraints(t *testing.T) {
	inputs := []query.Params{
		sligo(),
		{query.ParamCounty: "Cork", query.ParamGrowingProperty: graph.PropWaterNeeds},
		{query.ParamSeason: "Spring", query.ParamPlantType: "Herb", query.ParamGrowingProperty: graph.PropDescription},
	}
	for _, in := range inputs {
		c := &counting{fn: func(p query.Params) ([]graph.Record, error) { return nil, nil }}
		res, err := New(c).ExecuteWithFallback(context.Background(), in, build)
		require.NoError(t, err)

		initial := in.ActiveFilters()
		for _, a := range res.Attempts {
			for _, f := range a.Params.ActiveFilters() {
				assert.True(t, slices.Contains(initial, f), "attempt %d added %s", a.Number, f)
				assert.Equal(t, in[f], a.Params[f])
			}
			assert.Equal(t, in[query.ParamGrowingProperty], a.Params[query.ParamGrowingProperty])
		}
		assert.LessOrEqual(t, len(c.calls), 10)
	}
}

func TestErrorStopsSearch(t *testing.T) {
	boom := errors.New("store unreachable")
	calls := 0
	exec := execFunc(func(ctx context.Context, tmpl query.Template, p query.Params) ([]graph.Record, error) {
		calls++
		if calls == 3 {
			return nil, boom
		}
		return nil, nil
	})

	res, err := New(exec).ExecuteWithFallback(context.Background(), sligo(), build)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestInitialErrorPropagates(t *testing.T) {
	boom := errors.New("no session")
	exec := execFunc(func(ctx context.Context, tmpl query.Template, p query.Params) ([]graph.Record, error) {
		return nil, boom
	})

	_, err := New(exec).ExecuteWithFallback(context.Background(), sligo(), build)
	assert.ErrorIs(t, err, boom)
}

func plantsInCounty(query.Params) *query.Query {
	return query.Match(query.From(query.Node("c", graph.LabelCounty).With(graph.PropName, query.ParamCounty)).
		Out(graph.RelHasSoil, query.Node("s", graph.LabelSoilType)).
		In(graph.RelGrowsWellIn, query.Node("p", graph.LabelPlant))).
		Return(query.As(query.Prop("p", graph.PropName), "name"))
}

func TestSubstitutedAttemptRecordsSafeQuery(t *testing.T) {
	safe := params.SafeQuery().Cypher()
	fc := &gardentest.FakeClient{
		Handler: func(tmpl query.Template, p query.Params) ([]graph.Record, error) {
			if tmpl.Cypher() != safe {
				return nil, &store.Error{Op: "run", Class: store.ErrParameterMismatch, Message: "expected parameter(s): countyName"}
			}
			return hit(), nil
		},
	}
	b, err := params.New(fc)
	require.NoError(t, err)

	initial := query.Params{query.ParamCounty: "Sligo", query.ParamGrowingProperty: graph.PropSunNeeds}
	res, err := New(b).ExecuteWithFallback(context.Background(), initial, plantsInCounty)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.Substituted)
	assert.False(t, res.FallbackUsed)
	require.Len(t, res.Attempts, 1)
	a := res.Attempts[0]
	assert.True(t, a.Substituted)
	assert.Equal(t, safe, a.Query)
	assert.NotEqual(t, plantsInCounty(initial).Cypher(), a.Query)
	assert.Equal(t, 1, a.ResultCount)
	assert.Contains(t, res.Summary(), "safe query substituted")

	runs := fc.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, safe, runs[1].Template.Cypher())
}

func TestAttemptRecordsBuiltQueryThroughBinder(t *testing.T) {
	fc := &gardentest.FakeClient{
		Handler: func(query.Template, query.Params) ([]graph.Record, error) { return hit(), nil },
	}
	b, err := params.New(fc)
	require.NoError(t, err)

	initial := query.Params{query.ParamCounty: "Cork"}
	res, err := New(b).ExecuteWithFallback(context.Background(), initial, plantsInCounty)
	require.NoError(t, err)

	assert.False(t, res.Substituted)
	require.Len(t, res.Attempts, 1)
	assert.False(t, res.Attempts[0].Substituted)
	assert.Equal(t, plantsInCounty(initial).Cypher(), res.Attempts[0].Query)
	assert.NotContains(t, res.Summary(), "substituted")
}
