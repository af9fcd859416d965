package graph

import (
	"strings"

	"github.com/spf13/cast"
)

// Node label constants for the gardening graph.
const (
	LabelPlant            = "Plant"
	LabelCounty           = "County"
	LabelSoilType         = "SoilType"
	LabelGrowingCondition = "GrowingCondition"
	LabelSeason           = "Season"
	LabelMonth            = "Month"
	LabelPollinatorType   = "PollinatorType"
)

// Relation type constants.
const (
	RelHasSoil        = "HAS_SOIL"        // County -> SoilType
	RelGrowsWellIn    = "GROWS_WELL_IN"   // Plant -> SoilType
	RelSuitableFor    = "SUITABLE_FOR"    // Plant -> GrowingCondition
	RelCompanionTo    = "COMPANION_TO"    // Plant - Plant
	RelAntagonisticTo = "ANTAGONISTIC_TO" // Plant - Plant
	RelAttracts       = "ATTRACTS"        // Plant -> PollinatorType
	RelPlantIn        = "PLANT_IN"        // Plant -> Month
	RelHarvestIn      = "HARVEST_IN"      // Plant -> Month
	RelPartOf         = "PART_OF"         // Month -> Season
)

// Plant property keys.
const (
	PropName                 = "name"
	PropSunNeeds             = "sunNeeds"
	PropWaterNeeds           = "waterNeeds"
	PropSoilPreference       = "soilPreference"
	PropNativeToIreland      = "nativeToIreland"
	PropSustainabilityRating = "sustainabilityRating"
	PropBiodiversityValue    = "biodiversityValue"
	PropHarvestSeason        = "harvestSeason"
	PropFloweringSeason      = "floweringSeason"
	PropLifecycle            = "lifecycle"
	PropCategory             = "category"
	PropDescription          = "description"
	PropNotes                = "notes"
)

// Labels lists every node label in the graph.
var Labels = []string{
	LabelPlant, LabelCounty, LabelSoilType, LabelGrowingCondition,
	LabelSeason, LabelMonth, LabelPollinatorType,
}

// RelationTypes lists every relationship type in the graph.
var RelationTypes = []string{
	RelHasSoil, RelGrowsWellIn, RelSuitableFor, RelCompanionTo, RelAntagonisticTo,
	RelAttracts, RelPlantIn, RelHarvestIn, RelPartOf,
}

var endpoints = map[string][2]string{
	RelHasSoil:        {LabelCounty, LabelSoilType},
	RelGrowsWellIn:    {LabelPlant, LabelSoilType},
	RelSuitableFor:    {LabelPlant, LabelGrowingCondition},
	RelCompanionTo:    {LabelPlant, LabelPlant},
	RelAntagonisticTo: {LabelPlant, LabelPlant},
	RelAttracts:       {LabelPlant, LabelPollinatorType},
	RelPlantIn:        {LabelPlant, LabelMonth},
	RelHarvestIn:      {LabelPlant, LabelMonth},
	RelPartOf:         {LabelMonth, LabelSeason},
}

// Endpoints returns the source and target labels of a relation type.
func Endpoints(relType string) (source, target string, ok bool) {
	e, ok := endpoints[relType]
	return e[0], e[1], ok
}

// Entity is a labelled node. Name is unique within its label.
type Entity struct {
	Label      string         `json:"label"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Prop returns a property value, treating "name" as the entity name.
func (e *Entity) Prop(key string) any {
	if key == PropName {
		return e.Name
	}
	if e.Properties == nil {
		return nil
	}
	return e.Properties[key]
}

// String returns a property coerced to a string, or "" when absent.
func (e *Entity) String(key string) string {
	v := e.Prop(key)
	if v == nil {
		return ""
	}
	return cast.ToString(v)
}

// Relationship is a typed, directed edge between two named nodes.
type Relationship struct {
	Type       string         `json:"type"`
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Notes returns the free-text notes attached to the relationship.
func (r *Relationship) Notes() string {
	if r.Properties == nil {
		return ""
	}
	return cast.ToString(r.Properties[PropNotes])
}

// Plant is the typed view of a Plant entity.
type Plant struct {
	Name                 string `json:"name"`
	SunNeeds             string `json:"sun_needs,omitempty"`
	WaterNeeds           string `json:"water_needs,omitempty"`
	SoilPreference       string `json:"soil_preference,omitempty"`
	NativeToIreland      bool   `json:"native_to_ireland"`
	SustainabilityRating int    `json:"sustainability_rating"`
	BiodiversityValue    string `json:"biodiversity_value,omitempty"`
	HarvestSeason        string `json:"harvest_season,omitempty"`
	FloweringSeason      string `json:"flowering_season,omitempty"`
	Lifecycle            string `json:"lifecycle,omitempty"`
	Category             string `json:"category,omitempty"`
	Description          string `json:"description,omitempty"`
}

// PlantFromEntity decodes a Plant node. Numeric and boolean properties are
// coerced leniently because seed data stores them as strings at times.
func PlantFromEntity(e *Entity) Plant {
	return Plant{
		Name:                 e.Name,
		SunNeeds:             e.String(PropSunNeeds),
		WaterNeeds:           e.String(PropWaterNeeds),
		SoilPreference:       e.String(PropSoilPreference),
		NativeToIreland:      cast.ToBool(e.Prop(PropNativeToIreland)),
		SustainabilityRating: cast.ToInt(e.Prop(PropSustainabilityRating)),
		BiodiversityValue:    e.String(PropBiodiversityValue),
		HarvestSeason:        e.String(PropHarvestSeason),
		FloweringSeason:      e.String(PropFloweringSeason),
		Lifecycle:            e.String(PropLifecycle),
		Category:             e.String(PropCategory),
		Description:          e.String(PropDescription),
	}
}

// IsPerennial reports whether the lifecycle names a perennial plant.
func (p Plant) IsPerennial() bool {
	return strings.Contains(strings.ToLower(p.Lifecycle), "perennial")
}
