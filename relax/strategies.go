package relax

import "github.com/joesaby/gardenqa/query"

// Strategy is one relaxation step. Apply is pure: it returns a new
// parameter set and never mutates its argument.
type Strategy struct {
	Name        string
	Description string
	Apply       func(query.Params) query.Params
}

func drop(keys ...string) func(query.Params) query.Params {
	return func(p query.Params) query.Params { return p.Without(keys...) }
}

func keep(keys ...string) func(query.Params) query.Params {
	return func(p query.Params) query.Params { return p.Only(keys...) }
}

var strategies = []Strategy{
	{Name: "drop_soil", Description: "Removed soil type constraint", Apply: drop(query.ParamSoilType)},
	{Name: "drop_plant_type", Description: "Removed plant type constraint", Apply: drop(query.ParamPlantType)},
	{Name: "drop_season", Description: "Removed season constraint", Apply: drop(query.ParamSeason)},
	{Name: "county_plant_type", Description: "Kept only county and plant type", Apply: keep(query.ParamCounty, query.ParamPlantType)},
	{Name: "county_soil", Description: "Kept only county and soil type", Apply: keep(query.ParamCounty, query.ParamSoilType)},
	{Name: "county_only", Description: "Kept only county", Apply: keep(query.ParamCounty)},
	{Name: "drop_county", Description: "Removed county constraint", Apply: drop(query.ParamCounty)},
	{Name: "plant_type_only", Description: "Kept only plant type", Apply: keep(query.ParamPlantType)},
	{Name: "minimal", Description: "Minimal query with only the requested property", Apply: keep()},
}

// Strategies returns the relaxation strategies in the order they are
// tried, most specific first.
func Strategies() []Strategy {
	return append([]Strategy(nil), strategies...)
}
