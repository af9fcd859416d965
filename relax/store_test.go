//go:build cgo

package relax_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/internal/gardentest"
	"github.com/joesaby/gardenqa/params"
	"github.com/joesaby/gardenqa/query"
	"github.com/joesaby/gardenqa/relax"
	"github.com/joesaby/gardenqa/retrieval"
)

func TestSligoScenarioOnSQLite(t *testing.T) {
	b, err := params.New(gardentest.NewStore(t))
	require.NoError(t, err)

	initial := query.Params{
		query.ParamCounty:          "Sligo",
		query.ParamPlantType:       "Vegetable",
		query.ParamSoilType:        "Clay",
		query.ParamSeason:          "Winter",
		query.ParamGrowingProperty: graph.PropSunNeeds,
	}
	res, err := relax.New(b).ExecuteWithFallback(context.Background(), initial, retrieval.PlantQuery(graph.RelPlantIn))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.FallbackUsed)
	require.Len(t, res.Attempts, 3)
	assert.Equal(t, []int{0, 0, 1}, []int{res.Attempts[0].ResultCount, res.Attempts[1].ResultCount, res.Attempts[2].ResultCount})
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Hawthorn Tree", res.Records[0].String("name"))
	assert.Equal(t, "Full Sun", res.Records[0].String("property"))
}

func TestUnknownCountyRelaxesToDropCounty(t *testing.T) {
	b, err := params.New(gardentest.NewStore(t))
	require.NoError(t, err)

	initial := query.Params{
		query.ParamCounty:          "Atlantis",
		query.ParamGrowingProperty: graph.PropDescription,
	}
	res, err := relax.New(b).ExecuteWithFallback(context.Background(), initial, retrieval.PlantQuery(graph.RelPlantIn))
	require.NoError(t, err)

	// Every strategy before drop_county keeps the unknown county.
	assert.True(t, res.Success)
	require.Len(t, res.Attempts, 8)
	assert.Equal(t, "drop_county", res.Attempts[7].Strategy)
	assert.Len(t, res.Records, 8)
}
