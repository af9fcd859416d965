package graph

import (
	"fmt"

	"github.com/spf13/cast"
)

// Raw is the fallback shape for a projected value that is neither a node
// nor a relationship, such as a map literal or a property bag.
type Raw map[string]any

// Record is one result row. Values are keyed by projection alias and hold
// one of *Entity, *Relationship, Raw, or a scalar (string, int64, float64,
// bool, []any, nil).
type Record struct {
	Keys   []string
	Values map[string]any
}

// NewRecord builds a record from parallel key and value slices.
func NewRecord(keys []string, values []any) Record {
	r := Record{Keys: keys, Values: make(map[string]any, len(keys))}
	for i, k := range keys {
		if i < len(values) {
			r.Values[k] = values[i]
		}
	}
	return r
}

// Get returns the raw value for a key.
func (r Record) Get(key string) (any, bool) {
	v, ok := r.Values[key]
	return v, ok
}

// Entity returns the node projected under key.
func (r Record) Entity(key string) (*Entity, bool) {
	e, ok := r.Values[key].(*Entity)
	return e, ok
}

// Relationship returns the edge projected under key.
func (r Record) Relationship(key string) (*Relationship, bool) {
	rel, ok := r.Values[key].(*Relationship)
	return rel, ok
}

// Raw returns the property map projected under key.
func (r Record) Raw(key string) (Raw, bool) {
	m, ok := r.Values[key].(Raw)
	return m, ok
}

// String coerces the value under key to a string. Nil yields "".
func (r Record) String(key string) string {
	v := r.Values[key]
	switch t := v.(type) {
	case nil:
		return ""
	case *Entity:
		return t.Name
	case *Relationship:
		return t.Type
	}
	return cast.ToString(v)
}

// Int coerces the value under key to an int.
func (r Record) Int(key string) (int, error) {
	v, ok := r.Values[key]
	if !ok {
		return 0, fmt.Errorf("graph: record has no key %q", key)
	}
	return cast.ToIntE(v)
}

// Bool coerces the value under key to a bool.
func (r Record) Bool(key string) bool {
	return cast.ToBool(r.Values[key])
}

// Strings coerces a list value to a string slice.
func (r Record) Strings(key string) []string {
	v := r.Values[key]
	if v == nil {
		return nil
	}
	return cast.ToStringSlice(v)
}
