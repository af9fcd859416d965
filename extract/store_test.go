//go:build cgo

package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joesaby/gardenqa/internal/gardentest"
)

func TestExtractAgainstSQLiteGraph(t *testing.T) {
	e := newExtractor(t, gardentest.NewStore(t))

	got, err := e.Extract(context.Background(), "What can I plant in Cork in March?")
	require.NoError(t, err)
	assert.Equal(t, []string{"Cork", "March"}, got.Terms())

	got, err = e.Extract(context.Background(), "Do leeks and kale grow in Sligo clay?")
	require.NoError(t, err)
	assert.Equal(t, []string{"Kale", "Leek"}, got.Plants)
	assert.Equal(t, []string{"Clay"}, got.SoilTypes)
	assert.Equal(t, []string{"Sligo"}, got.Counties)
}
