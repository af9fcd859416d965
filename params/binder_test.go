package params

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/internal/gardentest"
	"github.com/joesaby/gardenqa/query"
	"github.com/joesaby/gardenqa/store"
)

func sunAndCounty() *query.Query {
	return query.Match(
		query.From(query.Node("c", graph.LabelCounty).With("name", query.ParamCounty)).
			Out(graph.RelHasSoil, query.Node("s", graph.LabelSoilType)).
			In(graph.RelGrowsWellIn, query.Node("p", graph.LabelPlant)),
	).
		Where(query.ContainsFold(query.Prop("p", graph.PropSunNeeds), query.ParamSunExposure)).
		ReturnDistinct(query.As(query.V("p"), "plant"))
}

func newBinder(t *testing.T, c store.Client, opts ...Option) *Binder {
	t.Helper()
	b, err := New(c, opts...)
	require.NoError(t, err)
	return b
}

func TestBindAppliesDefaultWithWarning(t *testing.T) {
	b := newBinder(t, &gardentest.FakeClient{})

	bound, warnings, err := b.Bind(sunAndCounty(), query.Params{query.ParamCounty: "Cork"})
	require.NoError(t, err)
	assert.Equal(t, "Cork", bound[query.ParamCounty])
	assert.Equal(t, "Full Sun", bound[query.ParamSunExposure])
	require.Len(t, warnings, 1)
	assert.Equal(t, query.ParamSunExposure, warnings[0].Param)
	assert.Contains(t, warnings[0].String(), "Full Sun")
}

func TestBindCountyDefault(t *testing.T) {
	b := newBinder(t, &gardentest.FakeClient{})

	bound, warnings, err := b.Bind(sunAndCounty(), query.Params{query.ParamSunExposure: "Partial Shade"})
	require.NoError(t, err)
	assert.Equal(t, "Dublin", bound[query.ParamCounty])
	assert.Len(t, warnings, 1)
}

func TestBindExplicitNilIsSupplied(t *testing.T) {
	b := newBinder(t, &gardentest.FakeClient{})

	bound, warnings, err := b.Bind(sunAndCounty(), query.Params{query.ParamCounty: nil, query.ParamSunExposure: "Full Sun"})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	v, ok := bound[query.ParamCounty]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestBindOnlyRequiredNames(t *testing.T) {
	b := newBinder(t, &gardentest.FakeClient{})

	bound, _, err := b.Bind(sunAndCounty(), query.Params{query.ParamCounty: "Cork", query.ParamSunExposure: "Full Sun", "extra": 1})
	require.NoError(t, err)
	assert.NotContains(t, bound, "extra")
}

func TestBindMissingWithoutDefault(t *testing.T) {
	b := newBinder(t, &gardentest.FakeClient{})

	_, _, err := b.Bind(query.Raw("MATCH (p:Plant)-[:GROWS_WELL_IN]->(s:SoilType {name: $soilType}) RETURN p"), query.Params{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingParameter))

	var mpe *MissingParameterError
	require.True(t, errors.As(err, &mpe))
	assert.Equal(t, "soilType", mpe.Name)
}

func TestBindPlantTypesDefaultIsFreshList(t *testing.T) {
	b := newBinder(t, &gardentest.FakeClient{})
	q := query.Match(query.From(query.Node("p", graph.LabelPlant))).
		Where(query.In(query.Prop("p", graph.PropCategory), query.ParamPlantTypes)).
		Return(query.As(query.V("p"), "plant"))

	first, _, err := b.Bind(q, nil)
	require.NoError(t, err)
	list, ok := first[query.ParamPlantTypes].([]any)
	require.True(t, ok)
	assert.Empty(t, list)
	first[query.ParamPlantTypes] = append(list, "Tree")

	second, _, err := b.Bind(q, nil)
	require.NoError(t, err)
	assert.Empty(t, second[query.ParamPlantTypes])
}

func TestWithDefaults(t *testing.T) {
	b := newBinder(t, &gardentest.FakeClient{}, WithDefaults(map[string]any{query.ParamCounty: "Galway"}))

	bound, _, err := b.Bind(sunAndCounty(), query.Params{query.ParamSunExposure: "Full Sun"})
	require.NoError(t, err)
	assert.Equal(t, "Galway", bound[query.ParamCounty])
}

func TestExecuteSuccess(t *testing.T) {
	fc := &gardentest.FakeClient{
		Handler: func(t query.Template, p query.Params) ([]graph.Record, error) {
			return []graph.Record{gardentest.PlantRecord("Kale", nil)}, nil
		},
	}
	b := newBinder(t, fc)

	res, err := b.Execute(context.Background(), sunAndCounty(), query.Params{query.ParamCounty: "Cork"})
	require.NoError(t, err)
	assert.False(t, res.Substituted)
	assert.Len(t, res.Records, 1)
	assert.Len(t, res.Warnings, 1)

	opened, closed := fc.Sessions()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

func TestExecuteSubstitutesOnceOnMismatch(t *testing.T) {
	mismatch := &store.Error{Op: "run", Code: "ParameterMissing", Class: store.ErrParameterMismatch, Message: "expected parameter(s): plantName"}
	fc := &gardentest.FakeClient{
		Handler: func(t query.Template, p query.Params) ([]graph.Record, error) {
			if t.Cypher() == SafeQuery().Cypher() {
				return []graph.Record{gardentest.PlantRecord("Potato", nil)}, nil
			}
			return nil, mismatch
		},
	}
	b := newBinder(t, fc)
	before := testutil.ToFloat64(substitutions)

	res, err := b.Execute(context.Background(), sunAndCounty(), query.Params{query.ParamCounty: "Cork", query.ParamSunExposure: "Partial Shade"})
	require.NoError(t, err)
	assert.True(t, res.Substituted)
	assert.ErrorIs(t, res.Cause, store.ErrParameterMismatch)
	assert.Equal(t, "Partial Shade", res.Params[query.ParamSunExposure])
	assert.Equal(t, "Potato", res.Records[0].String("plant"))
	assert.Equal(t, before+1, testutil.ToFloat64(substitutions))

	runs := fc.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, SafeQuery().Cypher(), runs[1].Template.Cypher())

	opened, closed := fc.Sessions()
	assert.Equal(t, 2, opened)
	assert.Equal(t, 2, closed)
}

func TestExecuteDoesNotRecurse(t *testing.T) {
	fc := &gardentest.FakeClient{
		Handler: func(t query.Template, p query.Params) ([]graph.Record, error) {
			return nil, &store.Error{Op: "run", Class: store.ErrParameterMismatch}
		},
	}
	b := newBinder(t, fc)

	_, err := b.Execute(context.Background(), sunAndCounty(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedQuery)
	assert.Len(t, fc.Runs(), 2)
}

func TestExecuteSyntaxErrorPropagatesAsMalformed(t *testing.T) {
	fc := &gardentest.FakeClient{
		Handler: func(t query.Template, p query.Params) ([]graph.Record, error) {
			return nil, &store.Error{Op: "run", Code: "Neo.ClientError.Statement.SyntaxError", Class: store.ErrSyntax}
		},
	}
	b := newBinder(t, fc)

	_, err := b.Execute(context.Background(), sunAndCounty(), nil)
	assert.ErrorIs(t, err, ErrMalformedQuery)
	assert.ErrorIs(t, err, store.ErrSyntax)

	var mqe *MalformedQueryError
	require.True(t, errors.As(err, &mqe))
	assert.Contains(t, mqe.Query, "MATCH (c:County")
	assert.Len(t, fc.Runs(), 1)
}

func TestExecuteUnavailablePropagates(t *testing.T) {
	fc := &gardentest.FakeClient{SessionErr: &store.Error{Op: "session", Class: store.ErrUnavailable}}
	b := newBinder(t, fc)

	_, err := b.Execute(context.Background(), sunAndCounty(), nil)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrMalformedQuery)
}

func TestExecuteMissingNeverRuns(t *testing.T) {
	fc := &gardentest.FakeClient{}
	b := newBinder(t, fc)

	_, err := b.Execute(context.Background(), query.Raw("MATCH (p:Plant {name: $plantName}) RETURN p"), nil)
	assert.ErrorIs(t, err, ErrMissingParameter)
	assert.Empty(t, fc.Runs())
}

func TestRunReturnsRecords(t *testing.T) {
	fc := &gardentest.FakeClient{
		Handler: func(t query.Template, p query.Params) ([]graph.Record, error) {
			return []graph.Record{gardentest.PlantRecord("Leek", nil)}, nil
		},
	}
	b := newBinder(t, fc)

	recs, err := b.Run(context.Background(), SafeQuery(), nil)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSafeQueryOrdersByName(t *testing.T) {
	want := "MATCH (p:Plant)\n" +
		"WHERE toLower(p.sunNeeds) CONTAINS toLower($sunExposure)\n" +
		"RETURN p AS plant, p.name AS name\n" +
		"ORDER BY name\n" +
		"LIMIT 25"
	assert.Equal(t, want, SafeQuery().Cypher())
	assert.Equal(t, []string{query.ParamSunExposure}, SafeQuery().Params())
}
