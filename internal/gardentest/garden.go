// Package gardentest provides a small seeded gardening graph and a
// scriptable fake store client for tests.
package gardentest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/store"
)

// Months in calendar order with their meteorological season.
var Months = [][2]string{
	{"January", "Winter"}, {"February", "Winter"}, {"March", "Spring"},
	{"April", "Spring"}, {"May", "Spring"}, {"June", "Summer"},
	{"July", "Summer"}, {"August", "Summer"}, {"September", "Autumn"},
	{"October", "Autumn"}, {"November", "Autumn"}, {"December", "Winter"},
}

func plant(name string, props map[string]any) graph.Entity {
	return graph.Entity{Label: graph.LabelPlant, Name: name, Properties: props}
}

// Nodes returns every fixture node.
func Nodes() []graph.Entity {
	var out []graph.Entity
	for _, c := range []string{"Cork", "Dublin", "Sligo", "Kerry"} {
		out = append(out, graph.Entity{Label: graph.LabelCounty, Name: c})
	}
	for _, s := range []string{"Loam", "Clay", "Sandy", "Peat"} {
		out = append(out, graph.Entity{Label: graph.LabelSoilType, Name: s})
	}
	for _, s := range []string{"Spring", "Summer", "Autumn", "Winter"} {
		out = append(out, graph.Entity{Label: graph.LabelSeason, Name: s})
	}
	for _, m := range Months {
		out = append(out, graph.Entity{Label: graph.LabelMonth, Name: m[0]})
	}
	for _, p := range []string{"Bumblebee", "Butterfly", "Hoverfly"} {
		out = append(out, graph.Entity{Label: graph.LabelPollinatorType, Name: p})
	}
	out = append(out, graph.Entity{Label: graph.LabelGrowingCondition, Name: "Exposed Coastal"})

	out = append(out,
		plant("Kale", map[string]any{
			"category": "Vegetable", "sunNeeds": "Full Sun to Partial Shade", "waterNeeds": "Moderate",
			"nativeToIreland": false, "sustainabilityRating": 4, "harvestSeason": "Autumn to Winter",
			"lifecycle": "Biennial", "description": "Hardy leafy brassica that crops through the cold months.",
		}),
		plant("Potato", map[string]any{
			"category": "Vegetable", "sunNeeds": "Full Sun", "waterNeeds": "Moderate",
			"nativeToIreland": false, "sustainabilityRating": 3, "harvestSeason": "Summer",
			"lifecycle": "Annual", "description": "Staple tuber, earthed up as it grows.",
		}),
		plant("Leek", map[string]any{
			"category": "Vegetable", "sunNeeds": "Full Sun", "waterNeeds": "High",
			"nativeToIreland": false, "sustainabilityRating": 4, "harvestSeason": "Winter",
			"lifecycle": "Biennial", "description": "Slow growing allium that stands in the ground over winter.",
		}),
		plant("Foxglove", map[string]any{
			"category": "Flower", "sunNeeds": "Partial Shade", "waterNeeds": "Moderate",
			"nativeToIreland": true, "sustainabilityRating": 5, "floweringSeason": "Summer",
			"lifecycle": "Biennial", "biodiversityValue": "High", "description": "Native woodland edge flower loved by bumblebees.",
		}),
		plant("Hawthorn Tree", map[string]any{
			"category": "Tree", "sunNeeds": "Full Sun", "waterNeeds": "Low",
			"nativeToIreland": true, "sustainabilityRating": 5, "floweringSeason": "Spring",
			"lifecycle": "Perennial", "biodiversityValue": "Very High", "description": "Native hedgerow tree, planted bare root in winter.",
		}),
		plant("Strawberry", map[string]any{
			"category": "Fruit", "sunNeeds": "Full Sun", "waterNeeds": "Moderate",
			"nativeToIreland": false, "sustainabilityRating": 3, "harvestSeason": "Summer",
			"lifecycle": "Perennial", "description": "Low growing soft fruit for beds and containers.",
		}),
		plant("Lavender", map[string]any{
			"category": "Herb", "sunNeeds": "Full Sun", "waterNeeds": "Low",
			"nativeToIreland": false, "sustainabilityRating": 4, "floweringSeason": "Summer",
			"lifecycle": "Perennial", "description": "Aromatic shrub for free-draining sunny spots.",
		}),
		plant("Marigold", map[string]any{
			"category": "Flower", "sunNeeds": "Full Sun", "waterNeeds": "Moderate",
			"nativeToIreland": false, "sustainabilityRating": 3, "floweringSeason": "Summer",
			"lifecycle": "Annual", "description": "Bright annual often grown among vegetables.",
		}),
	)
	return out
}

func rel(typ, src, tgt string) graph.Relationship {
	return graph.Relationship{Type: typ, Source: src, Target: tgt}
}

// Edges returns every fixture relationship.
func Edges() []graph.Relationship {
	out := []graph.Relationship{
		rel(graph.RelHasSoil, "Cork", "Loam"),
		rel(graph.RelHasSoil, "Cork", "Sandy"),
		rel(graph.RelHasSoil, "Dublin", "Loam"),
		rel(graph.RelHasSoil, "Dublin", "Clay"),
		rel(graph.RelHasSoil, "Sligo", "Clay"),
		rel(graph.RelHasSoil, "Sligo", "Peat"),
		rel(graph.RelHasSoil, "Kerry", "Peat"),

		rel(graph.RelGrowsWellIn, "Kale", "Clay"),
		rel(graph.RelGrowsWellIn, "Kale", "Loam"),
		rel(graph.RelGrowsWellIn, "Potato", "Loam"),
		rel(graph.RelGrowsWellIn, "Potato", "Sandy"),
		rel(graph.RelGrowsWellIn, "Leek", "Loam"),
		rel(graph.RelGrowsWellIn, "Foxglove", "Peat"),
		rel(graph.RelGrowsWellIn, "Foxglove", "Loam"),
		rel(graph.RelGrowsWellIn, "Hawthorn Tree", "Clay"),
		rel(graph.RelGrowsWellIn, "Hawthorn Tree", "Loam"),
		rel(graph.RelGrowsWellIn, "Strawberry", "Loam"),
		rel(graph.RelGrowsWellIn, "Strawberry", "Sandy"),
		rel(graph.RelGrowsWellIn, "Lavender", "Sandy"),
		rel(graph.RelGrowsWellIn, "Marigold", "Loam"),
		rel(graph.RelGrowsWellIn, "Marigold", "Sandy"),

		rel(graph.RelPlantIn, "Kale", "March"),
		rel(graph.RelPlantIn, "Kale", "April"),
		rel(graph.RelPlantIn, "Potato", "March"),
		rel(graph.RelPlantIn, "Potato", "April"),
		rel(graph.RelPlantIn, "Leek", "April"),
		rel(graph.RelPlantIn, "Foxglove", "September"),
		rel(graph.RelPlantIn, "Hawthorn Tree", "December"),
		rel(graph.RelPlantIn, "Strawberry", "April"),
		rel(graph.RelPlantIn, "Lavender", "May"),
		rel(graph.RelPlantIn, "Marigold", "May"),

		rel(graph.RelHarvestIn, "Kale", "November"),
		rel(graph.RelHarvestIn, "Leek", "January"),
		rel(graph.RelHarvestIn, "Potato", "July"),
		rel(graph.RelHarvestIn, "Strawberry", "June"),

		rel(graph.RelAttracts, "Foxglove", "Bumblebee"),
		rel(graph.RelAttracts, "Hawthorn Tree", "Bumblebee"),
		rel(graph.RelAttracts, "Lavender", "Bumblebee"),
		rel(graph.RelAttracts, "Lavender", "Butterfly"),
		rel(graph.RelAttracts, "Marigold", "Hoverfly"),
		rel(graph.RelAttracts, "Strawberry", "Bumblebee"),

		rel(graph.RelSuitableFor, "Kale", "Exposed Coastal"),
	}
	companion := rel(graph.RelCompanionTo, "Marigold", "Potato")
	companion.Properties = map[string]any{"notes": "deters soil pests"}
	antagonist := rel(graph.RelAntagonisticTo, "Potato", "Strawberry")
	antagonist.Properties = map[string]any{"notes": "share verticillium wilt"}
	leeks := rel(graph.RelCompanionTo, "Leek", "Kale")
	out = append(out, companion, antagonist, leeks)

	for _, m := range Months {
		out = append(out, rel(graph.RelPartOf, m[0], m[1]))
	}
	return out
}

// Seed writes the fixture graph into s.
func Seed(ctx context.Context, s *store.Store) error {
	for _, n := range Nodes() {
		if _, err := s.UpsertNode(ctx, n); err != nil {
			return err
		}
	}
	for _, e := range Edges() {
		if _, err := s.UpsertRelationship(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// NewStore opens a temporary SQLite store holding the fixture graph.
func NewStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "garden.db"), 4)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := Seed(context.Background(), s); err != nil {
		t.Fatalf("seeding store: %v", err)
	}
	return s
}
