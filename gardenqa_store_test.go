//go:build cgo

package gardenqa

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/internal/gardentest"
	"github.com/joesaby/gardenqa/recommend"
)

type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func TestAnswerQuestionRelaxesAndGenerates(t *testing.T) {
	gen := &stubGenerator{text: "No exact match for winter vegetables; Hawthorn Tree suits Sligo clay."}
	e, err := New(offlineConfig(), WithClient(gardentest.NewStore(t)), WithGenerator(gen))
	require.NoError(t, err)
	defer e.Close()

	a, err := e.AnswerQuestion(context.Background(), "Which vegetables grow in clay soil in Sligo in winter?")
	require.NoError(t, err)

	assert.Equal(t, gen.text, a.Text)
	assert.True(t, a.Trace.Success)
	assert.True(t, a.Trace.FallbackUsed)
	assert.Len(t, a.Trace.Attempts, 3)
	assert.Equal(t, []string{"plant type"}, a.Relaxed)
	assert.InDelta(t, 0.8, a.Confidence, 1e-9)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "- Hawthorn Tree is a tree.")
	assert.Contains(t, gen.prompts[0], "The plant type constraint was relaxed.")
}

func TestAnswerQuestionWithoutGeneration(t *testing.T) {
	gen := &stubGenerator{text: "unused"}
	e, err := New(offlineConfig(), WithClient(gardentest.NewStore(t)), WithGenerator(gen))
	require.NoError(t, err)
	defer e.Close()

	a, err := e.AnswerQuestion(context.Background(), "What should I plant in Cork?",
		WithContext(map[string]string{"county": "Kerry"}), WithoutGeneration())
	require.NoError(t, err)

	assert.Empty(t, a.Text)
	assert.Empty(t, gen.prompts)
	assert.Equal(t, 1.0, a.Confidence)
	require.Len(t, a.Plants, 1)
	assert.Equal(t, "Foxglove", a.Plants[0].Name)
}

func TestRecommendPlantsOnFixture(t *testing.T) {
	e, err := New(offlineConfig(), WithClient(gardentest.NewStore(t)))
	require.NoError(t, err)
	defer e.Close()

	native := true
	cands, err := e.RecommendPlants(context.Background(), recommend.Conditions{County: "Cork", NativeOnly: &native})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "Hawthorn Tree", cands[0].Plant.Name)
	assert.Equal(t, 100, cands[0].MatchPercentage)
}

func TestSeedAndIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := offlineConfig()
	cfg.Store.DBPath = filepath.Join(dir, "garden.db")
	cfg.Store.EmbeddingDim = 4

	e, err := New(cfg, WithEmbedder(constEmbedder{}))
	require.NoError(t, err)
	defer e.Close()

	seedFile := filepath.Join(dir, "garden.yaml")
	require.NoError(t, os.WriteFile(seedFile, []byte(`
nodes:
  - {label: County, name: Clare}
  - {label: SoilType, name: Limestone}
  - {label: Plant, name: Thyme, properties: {category: Herb, description: Low creeping herb}}
relationships:
  - {type: HAS_SOIL, source: Clare, target: Limestone}
  - {type: GROWS_WELL_IN, source: Thyme, target: Limestone}
`), 0o644))

	stats, err := e.Seed(ctx, seedFile)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Nodes)
	assert.Equal(t, 2, stats.Relationships)

	n, err := e.IndexEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Embeddings)
	assert.Equal(t, 1, st.Edges[graph.RelGrowsWellIn])

	a, err := e.AnswerQuestion(ctx, "What grows in Clare?", WithoutGeneration())
	require.NoError(t, err)
	assert.Equal(t, []string{"Thyme has description: Low creeping herb."}, a.Facts)
	require.Len(t, a.Plants, 1)
	assert.Equal(t, []string{"graph", "vector"}, a.Plants[0].Methods)
}

func TestIndexEmbeddingsNeedsEmbedder(t *testing.T) {
	e, err := New(offlineConfig(), WithClient(gardentest.NewStore(t)))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.IndexEmbeddings(context.Background())
	assert.ErrorIs(t, err, ErrNoEmbedder)
}
