//go:build cgo

package seed

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/internal/gardentest"
	"github.com/joesaby/gardenqa/store"
)

func newEmptyStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "seed.db"), 4)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func fixtureFile(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(Graph{Nodes: gardentest.Nodes(), Relationships: gardentest.Edges()})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "garden.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadIntoStoreIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newEmptyStore(t)

	g, err := ReadFile(fixtureFile(t))
	require.NoError(t, err)

	stats, err := Load(ctx, s, g)
	require.NoError(t, err)
	assert.Equal(t, len(gardentest.Nodes()), stats.Nodes)
	assert.Equal(t, len(gardentest.Edges()), stats.Relationships)

	_, err = Load(ctx, s, g)
	require.NoError(t, err)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, st.Nodes[graph.LabelPlant])
	assert.Equal(t, 4, st.Nodes[graph.LabelCounty])
}

func TestIndexPlantEmbeddings(t *testing.T) {
	ctx := context.Background()
	s := gardentest.NewStore(t)
	emb := &pickyEmbedder{}

	n, err := IndexEmbeddings(ctx, s, emb, graph.LabelPlant, 3)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Len(t, emb.calls, 3)

	// Already indexed nodes are skipped.
	n, err = IndexEmbeddings(ctx, s, emb, graph.LabelPlant, 3)
	require.NoError(t, err)
	assert.Zero(t, n)
}
