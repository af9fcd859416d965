package retrieval

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/joesaby/gardenqa/graph"
	"github.com/joesaby/gardenqa/query"
	"github.com/joesaby/gardenqa/store"
)

// propertyKeywords maps question word stems to the plant property the
// question asks about. Earlier rows win.
var propertyKeywords = []struct {
	stems []string
	prop  string
}{
	{[]string{"sustainab", "eco"}, graph.PropSustainabilityRating},
	{[]string{"native", "indigenous"}, graph.PropNativeToIreland},
	{[]string{"harvest", "pick", "reap"}, graph.PropHarvestSeason},
	{[]string{"water", "irrigat", "drought"}, graph.PropWaterNeeds},
	{[]string{"soil"}, graph.PropSoilPreference},
	{[]string{"sun", "shade", "light"}, graph.PropSunNeeds},
	{[]string{"flower", "bloom", "blossom"}, graph.PropFloweringSeason},
	{[]string{"pollinat", "wildlife", "biodivers"}, graph.PropBiodiversityValue},
}

// GrowingProperty picks the plant property a question asks about,
// defaulting to the description.
func GrowingProperty(question string) string {
	terms := significantTerms(question)
	for _, row := range propertyKeywords {
		for _, t := range terms {
			for _, stem := range row.stems {
				if strings.HasPrefix(t, stem) {
					return row.prop
				}
			}
		}
	}
	return graph.PropDescription
}

// significantTerms returns the lowercased words of a question with
// punctuation, short words and stop words removed.
func significantTerms(question string) []string {
	replacer := strings.NewReplacer(
		"\"", " ", "(", " ", ")", " ", "?", " ", "!", " ",
		".", " ", ",", " ", ";", " ", ":", " ", "'s", " ",
	)
	words := strings.Fields(strings.ToLower(replacer.Replace(question)))

	seen := make(map[string]bool)
	var terms []string
	for _, w := range words {
		if len(w) > 2 && !isStopWord(w) && !seen[w] {
			seen[w] = true
			terms = append(terms, w)
		}
	}
	return terms
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "her": true,
	"was": true, "one": true, "our": true, "out": true, "has": true,
	"what": true, "when": true, "where": true, "which": true, "who": true,
	"how": true, "does": true, "should": true, "would": true, "could": true,
	"this": true, "that": true, "with": true, "from": true, "into": true,
	"best": true, "good": true, "some": true, "any": true, "there": true,
	"grow": true, "growing": true, "plant": true, "plants": true, "garden": true,
}

func isStopWord(w string) bool {
	return stopWords[w]
}

var relationPhrases = map[string]string{
	graph.RelGrowsWellIn:    "grows well in",
	graph.RelSuitableFor:    "is suitable for",
	graph.RelPlantIn:        "is planted in",
	graph.RelHarvestIn:      "is harvested in",
	graph.RelAttracts:       "attracts",
	graph.RelCompanionTo:    "is a good companion to",
	graph.RelAntagonisticTo: "should not be grown near",
	graph.RelHasSoil:        "has soil type",
	graph.RelPartOf:         "is part of",
}

// relationFacts renders plant detail rows as sentences.
func relationFacts(recs []graph.Record) []string {
	facts := make([]string, 0, len(recs))
	for _, r := range recs {
		rel := r.String("relation")
		phrase, ok := relationPhrases[rel]
		if !ok {
			phrase = strings.ToLower(strings.ReplaceAll(rel, "_", " "))
		}
		facts = append(facts, fmt.Sprintf("%s %s %s.", r.String("plant"), phrase, r.String("target")))
	}
	return facts
}

// plantFacts renders plant query rows. When the query projected a
// property the fact names it.
func plantFacts(recs []graph.Record, p query.Params) []string {
	prop := p.String(query.ParamGrowingProperty)
	facts := make([]string, 0, len(recs))
	for _, r := range recs {
		name := r.String("name")
		e, _ := r.Entity("plant")
		v, projected := r.Get("property")
		switch {
		case projected && v != nil:
			facts = append(facts, fmt.Sprintf("%s has %s: %s.", name, prop, cast.ToString(v)))
		case e != nil && e.String(graph.PropCategory) != "":
			facts = append(facts, fmt.Sprintf("%s is a %s.", name, strings.ToLower(e.String(graph.PropCategory))))
		default:
			facts = append(facts, name+".")
		}
	}
	return facts
}

func similarFact(s store.Similar) string {
	desc := s.Entity.String(graph.PropDescription)
	if desc == "" {
		return fmt.Sprintf("%s may be relevant (similarity %.2f).", s.Entity.Name, s.Score)
	}
	return fmt.Sprintf("%s may be relevant (similarity %.2f): %s", s.Entity.Name, s.Score, desc)
}
