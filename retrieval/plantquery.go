package retrieval

import (
	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/query"
	"github.com/joesaby/gardenqa/relax"
)

// MaxPlants caps the rows returned by a plant query.
const MaxPlants = 25

// PlantQuery returns a builder for the plant lookup query. Each active
// filter adds its own pattern; inactive filters leave the query
// unconstrained on that axis. seasonRel selects how plants relate to
// months: graph.RelPlantIn or graph.RelHarvestIn.
func PlantQuery(seasonRel string) relax.BuildFunc {
	if seasonRel == "" {
		seasonRel = graph.RelPlantIn
	}
	return func(p query.Params) *query.Query {
		plant := query.Node("p", graph.LabelPlant)
		soil := query.Node("s", graph.LabelSoilType)
		if p.Active(query.ParamSoilType) {
			soil = soil.With(graph.PropName, query.ParamSoilType)
		}

		var paths []query.Path
		switch {
		case p.Active(query.ParamCounty):
			paths = append(paths, query.From(query.Node("c", graph.LabelCounty).With(graph.PropName, query.ParamCounty)).
				Out(graph.RelHasSoil, soil).
				In(graph.RelGrowsWellIn, plant))
		case p.Active(query.ParamSoilType):
			paths = append(paths, query.From(plant).Out(graph.RelGrowsWellIn, soil))
		default:
			paths = append(paths, query.From(plant))
		}
		if p.Active(query.ParamSeason) {
			paths = append(paths, query.From(query.Node("p", graph.LabelPlant)).
				Out(seasonRel, query.Node("m", graph.LabelMonth)).
				Out(graph.RelPartOf, query.Node("se", graph.LabelSeason).With(graph.PropName, query.ParamSeason)))
		}

		q := query.Match(paths...)
		if p.Active(query.ParamPlantType) {
			q.Where(query.ContainsFold(query.Prop("p", graph.PropCategory), query.ParamPlantType))
		}
		projs := []query.Projection{
			query.As(query.V("p"), "plant"),
			query.As(query.Prop("p", graph.PropName), "name"),
		}
		if p.Active(query.ParamGrowingProperty) {
			projs = append(projs, query.As(query.DynProp("p", query.ParamGrowingProperty), "property"))
		}
		return q.ReturnDistinct(projs...).OrderBy("name", false).Take(MaxPlants)
	}
}

// PlantDetailsQuery returns every outgoing relationship of the named
// plants, one row per edge.
func PlantDetailsQuery() *query.Query {
	return query.Match(
		query.From(query.Node("p", graph.LabelPlant)).
			Via(query.Rel(query.Outgoing, plantRelTypes...).As("r"), query.Node("o", "")),
	).
		Where(query.In(query.Prop("p", graph.PropName), query.ParamNames)).
		Return(
			query.As(query.Prop("p", graph.PropName), "plant"),
			query.As(query.TypeOf("r"), "relation"),
			query.As(query.Prop("o", graph.PropName), "target"),
		).
		OrderBy("plant", false).
		OrderBy("relation", false).
		OrderBy("target", false)
}

var plantRelTypes = []string{
	graph.RelGrowsWellIn, graph.RelSuitableFor, graph.RelPlantIn, graph.RelHarvestIn,
	graph.RelAttracts, graph.RelCompanionTo, graph.RelAntagonisticTo,
}
