package answer

import (
	"strings"

	"github.com/joesaby/gardenqa/relax"
	"github.com/joesaby/gardenqa/retrieval"
)

// Confidence levels derived from the relaxation trace.
const (
	exactConfidence     = 1.0
	attemptPenalty      = 0.1
	relaxedFloor        = 0.3
	exhaustedConfidence = 0.2
	issuePenalty        = 0.1
)

// TraceConfidence scores how closely the facts match the question: 1.0
// for an exact hit, lower for each relaxation attempt, 0.2 when nothing
// matched. Results from the substituted safe query ignore every filter and
// score the relaxed floor.
func TraceConfidence(trace *relax.Result) float64 {
	if trace == nil || !trace.Success {
		return exhaustedConfidence
	}
	if trace.Substituted {
		return relaxedFloor
	}
	if !trace.FallbackUsed {
		return exactConfidence
	}
	c := exactConfidence - attemptPenalty*float64(len(trace.Attempts)-1)
	if c < relaxedFloor {
		return relaxedFloor
	}
	return c
}

// review checks a generated answer against what was retrieved.
func review(text string, resp *retrieval.Response) []string {
	var issues []string
	lower := strings.ToLower(text)

	if len(resp.Plants) > 0 {
		named := false
		for _, p := range resp.Plants {
			if strings.Contains(lower, strings.ToLower(p.Name)) {
				named = true
				break
			}
		}
		if !named {
			issues = append(issues, "Answer does not name any retrieved plant")
		}
	}

	if len(resp.Facts) > 0 {
		for _, phrase := range []string{"based on my knowledge", "i don't have information", "no information was provided"} {
			if strings.Contains(lower, phrase) {
				issues = append(issues, "Answer ignores the retrieved facts")
				break
			}
		}
	}

	if len(RelaxedFilters(resp.Trace)) > 0 && !mentionsRelaxation(lower) {
		issues = append(issues, "Answer does not say the match is approximate")
	}
	return issues
}

func mentionsRelaxation(lower string) bool {
	for _, w := range []string{"relax", "exact match", "approximate", "closest", "instead", "no exact", "broaden", "although", "not specific"} {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func adjust(c float64, issues []string) float64 {
	c -= issuePenalty * float64(len(issues))
	if c < 0 {
		return 0
	}
	return c
}
