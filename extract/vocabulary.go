package extract

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabularyYAML []byte

// Term is a canonical name with the surface forms that select it.
type Term struct {
	Name   string   `yaml:"name"`
	Terms  []string `yaml:"terms"`
	Months []string `yaml:"months,omitempty"`
}

// StaticVocabulary holds the terms that are not node names in the graph.
// Immutable after load.
type StaticVocabulary struct {
	Seasons    []Term `yaml:"seasons"`
	Activities []Term `yaml:"activities"`
	PlantTypes []Term `yaml:"plant_types"`

	monthSeason map[string]string
}

var (
	cachedVocabulary *StaticVocabulary
	vocabularyOnce   sync.Once
	vocabularyErr    error
)

// LoadStaticVocabulary parses the embedded vocabulary once and caches it.
func LoadStaticVocabulary() (*StaticVocabulary, error) {
	vocabularyOnce.Do(func() {
		v, err := ParseStaticVocabulary(defaultVocabularyYAML)
		if err != nil {
			vocabularyErr = err
			return
		}
		cachedVocabulary = v
		slog.Debug("extract: static vocabulary loaded",
			"seasons", len(v.Seasons),
			"activities", len(v.Activities),
			"plant_types", len(v.PlantTypes),
		)
	})
	return cachedVocabulary, vocabularyErr
}

// ParseStaticVocabulary parses a vocabulary document.
func ParseStaticVocabulary(data []byte) (*StaticVocabulary, error) {
	var v StaticVocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing vocabulary.yaml: %w", err)
	}
	v.monthSeason = make(map[string]string)
	for _, s := range v.Seasons {
		for _, m := range s.Months {
			v.monthSeason[fold(m)] = s.Name
		}
	}
	return &v, nil
}

// SeasonOf returns the season a month belongs to, or "".
func (v *StaticVocabulary) SeasonOf(month string) string {
	return v.monthSeason[fold(month)]
}
