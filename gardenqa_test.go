package gardenqa

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/internal/gardentest"
	"github.com/joesaby/gardenqa/llm"
	"github.com/joesaby/gardenqa/query"
	"github.com/joesaby/gardenqa/recommend"
	"github.com/joesaby/gardenqa/store"
)

type stubGenerator struct {
	text    string
	err     error
	prompts []string
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.text, g.err
}

func offlineConfig() Config {
	cfg := DefaultConfig()
	cfg.Chat.Provider = ""
	cfg.Embedding.Provider = ""
	return cfg
}

func TestWithContextHints(t *testing.T) {
	var o askOptions
	WithContext(map[string]string{
		"county":          "Cork",
		"plantType":       "Herb",
		"soil_type":       "Sandy",
		"season":          "Summer",
		"growingProperty": graph.PropSunNeeds,
		"unknown":         "ignored",
	})(&o)

	assert.Equal(t, "Cork", o.hints.County)
	assert.Equal(t, "Herb", o.hints.PlantType)
	assert.Equal(t, "Sandy", o.hints.SoilType)
	assert.Equal(t, "Summer", o.hints.Season)
	assert.Equal(t, graph.PropSunNeeds, o.hints.GrowingProperty)
}

func TestAnswerQuestionRejectsEmpty(t *testing.T) {
	e, err := New(offlineConfig(), WithClient(&gardentest.FakeClient{}))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.AnswerQuestion(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestAnswerQuestionStoreUnavailable(t *testing.T) {
	fc := &gardentest.FakeClient{SessionErr: &store.Error{Op: "session", Class: store.ErrUnavailable}}
	gen := &stubGenerator{text: "unused"}
	e, err := New(offlineConfig(), WithClient(fc), WithGenerator(gen))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.AnswerQuestion(context.Background(), "What grows in Cork?")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Empty(t, gen.prompts)
	assert.ErrorIs(t, e.Health(context.Background()), ErrStoreUnavailable)
}

func TestRecommendPlantsUsesBinder(t *testing.T) {
	fc := &gardentest.FakeClient{
		Handler: func(tpl query.Template, p query.Params) ([]graph.Record, error) {
			return nil, nil
		},
	}
	e, err := New(offlineConfig(), WithClient(fc))
	require.NoError(t, err)
	defer e.Close()

	cands, err := e.RecommendPlants(context.Background(), recommend.Conditions{})
	require.NoError(t, err)
	assert.Empty(t, cands)

	runs := fc.Runs()
	require.NotEmpty(t, runs)
	// Empty conditions fall back to the defaults table.
	assert.Equal(t, "Dublin", runs[0].Params[query.ParamCounty])
	assert.Equal(t, "Full Sun", runs[0].Params[query.ParamSunExposure])
}

func TestWriteOperationsNeedEmbeddedStore(t *testing.T) {
	cfg := offlineConfig()
	cfg.Store.Driver = DriverNeo4j
	cfg.Store.URI = "bolt://localhost:7687"

	e, err := New(cfg)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Seed(context.Background(), "garden.json")
	assert.ErrorIs(t, err, ErrReadOnlyStore)
	_, err = e.IndexEmbeddings(context.Background())
	assert.ErrorIs(t, err, ErrReadOnlyStore)
	_, err = e.Stats(context.Background())
	assert.ErrorIs(t, err, ErrReadOnlyStore)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := offlineConfig()
	cfg.Store.Driver = ""
	_, err := New(cfg, WithClient(&gardentest.FakeClient{}))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClosedEngine(t *testing.T) {
	e, err := New(offlineConfig(), WithClient(&gardentest.FakeClient{}))
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.AnswerQuestion(context.Background(), "What grows in Cork?")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = e.RecommendPlants(context.Background(), recommend.Conditions{})
	assert.ErrorIs(t, err, ErrClosed)
}
