package answer

import (
	"fmt"
	"slices"
	"strings"

	"github.com/joesaby/gardenqa/extract"
	"github.com/joesaby/gardenqa/query"
	"github.com/joesaby/gardenqa/relax"
	"github.com/joesaby/gardenqa/retrieval"
)

// SystemPrompt is the system message answer generators are created with.
const SystemPrompt = `You are a gardening assistant for Irish gardens. Answer using the facts provided from the gardening knowledge graph.
Rules:
1. Prefer the provided facts over general knowledge and name the plants they mention.
2. If the search had to relax a constraint, say which one so the reader knows the match is approximate.
3. If no facts were found, give brief general advice for Irish conditions and say that it is general advice.
4. Be concise and practical.`

// filterNames are the reader-facing names of the relaxable filters.
var filterNames = map[string]string{
	query.ParamCounty:    "county",
	query.ParamPlantType: "plant type",
	query.ParamSoilType:  "soil type",
	query.ParamSeason:    "season",
}

// RelaxedFilters lists the filters the search dropped to find results, in
// filter order. It is empty when the first query matched. A substituted
// result applied none of them.
func RelaxedFilters(trace *relax.Result) []string {
	if trace == nil || (!trace.FallbackUsed && !trace.Substituted) {
		return nil
	}
	var kept []string
	if !trace.Substituted {
		kept = trace.FinalParams.ActiveFilters()
	}
	var out []string
	for _, k := range trace.OriginalParams.ActiveFilters() {
		if !slices.Contains(kept, k) {
			out = append(out, filterNames[k])
		}
	}
	return out
}

func buildEntities(b *strings.Builder, ents *extract.EntitySet) {
	if ents == nil || (ents.IsEmpty() && len(ents.PlantTypes) == 0) {
		b.WriteString("Recognised terms: none\n")
		return
	}
	b.WriteString("Recognised terms:\n")
	for _, row := range []struct {
		label string
		terms []string
	}{
		{"Plants", ents.Plants},
		{"Plant types", ents.PlantTypes},
		{"Counties", ents.Counties},
		{"Soil types", ents.SoilTypes},
		{"Seasons", ents.Seasons},
		{"Months", ents.Months},
	} {
		if len(row.terms) > 0 {
			fmt.Fprintf(b, "- %s: %s\n", row.label, strings.Join(row.terms, ", "))
		}
	}
}

// BuildPrompt assembles the generation prompt from a retrieval response.
// At most maxFacts facts are listed; zero means no limit.
func BuildPrompt(resp *retrieval.Response, maxFacts int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", resp.Question)
	buildEntities(&b, resp.Entities)

	facts := resp.Facts
	if maxFacts > 0 && len(facts) > maxFacts {
		facts = facts[:maxFacts]
	}
	b.WriteString("\nFacts from the knowledge graph:\n")
	if len(facts) == 0 {
		b.WriteString("- none\n")
	}
	for _, f := range facts {
		b.WriteString("- " + f + "\n")
	}

	if t := resp.Trace; t != nil && (t.FallbackUsed || t.Substituted) {
		b.WriteString("\nSearch notes:\n")
		b.WriteString(t.Summary())
		relaxed := RelaxedFilters(t)
		switch {
		case !t.Success:
			b.WriteString("No relaxed search matched either.\n")
		case t.Substituted:
			b.WriteString("The search could not apply the requested filters. These plants are matched on sun exposure only.\n")
		case len(relaxed) == 1:
			fmt.Fprintf(&b, "No exact match was found. The %s constraint was relaxed.\n", relaxed[0])
		case len(relaxed) > 1:
			fmt.Fprintf(&b, "No exact match was found. The %s constraints were relaxed.\n", strings.Join(relaxed, " and "))
		}
	}

	b.WriteString("\n")
	if len(resp.Facts) == 0 {
		b.WriteString("Nothing matching was found in the knowledge graph. Give a short general answer and say it is general advice.")
	} else {
		b.WriteString("Answer the question using the facts above.")
	}
	return b.String()
}
