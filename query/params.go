package query

import (
	"maps"
	"regexp"
	"slices"

	"github.com/spf13/cast"
)

// Canonical parameter names shared by query builders, the relaxation
// strategies and the binder defaults.
const (
	ParamCounty          = "countyName"
	ParamPlantType       = "plantType"
	ParamSoilType        = "soilType"
	ParamSeason          = "season"
	ParamGrowingProperty = "growingProperty"
	ParamSunExposure     = "sunExposure"
	ParamPlantTypes      = "plantTypes"
	ParamNativeOnly      = "nativeOnly"
	ParamNames           = "names"
	ParamLimit           = "limit"
)

// FilterParams are the parameters relaxation may drop, in precedence order.
var FilterParams = []string{ParamCounty, ParamPlantType, ParamSoilType, ParamSeason}

// Params maps parameter names to values. A nil value means the parameter is
// unconstrained but still binds (as null) when a query references it.
type Params map[string]any

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	return maps.Clone(p)
}

// Active reports whether key is present with a non-nil value.
func (p Params) Active(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// String returns the value under key as a string, or "" when unset.
func (p Params) String(key string) string {
	if !p.Active(key) {
		return ""
	}
	return cast.ToString(p[key])
}

// ActiveFilters returns the filter parameters that constrain the query, in
// FilterParams order.
func (p Params) ActiveFilters() []string {
	var out []string
	for _, k := range FilterParams {
		if p.Active(k) {
			out = append(out, k)
		}
	}
	return out
}

// Without returns a copy with the given keys set to nil.
func (p Params) Without(keys ...string) Params {
	out := p.Clone()
	for _, k := range keys {
		if _, ok := out[k]; ok {
			out[k] = nil
		}
	}
	return out
}

// Only returns a copy in which every filter parameter not listed in keep
// is set to nil. Non-filter parameters pass through untouched.
func (p Params) Only(keep ...string) Params {
	out := p.Clone()
	for _, k := range FilterParams {
		if slices.Contains(keep, k) {
			continue
		}
		if _, ok := out[k]; ok {
			out[k] = nil
		}
	}
	return out
}

// Template is anything that can be executed against the graph store.
type Template interface {
	// Params lists the parameter names the template references, in order
	// of first use.
	Params() []string
	// Cypher renders the template as Cypher text.
	Cypher() string
}

var paramRef = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// Raw is a hand-written Cypher template. Its parameters are discovered by
// scanning for $identifier placeholders.
type Raw string

// Params implements Template.
func (r Raw) Params() []string {
	var out []string
	for _, m := range paramRef.FindAllStringSubmatch(string(r), -1) {
		if !slices.Contains(out, m[1]) {
			out = append(out, m[1])
		}
	}
	return out
}

// Cypher implements Template.
func (r Raw) Cypher() string { return string(r) }
