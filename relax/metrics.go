package relax

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const tracerName = "gardenqa/relax"

var (
	// attemptsTotal counts executed attempts.
	//
	// Labels:
	//   - strategy: "initial" or a Strategy.Name
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gardenqa",
			Subsystem: "relax",
			Name:      "attempts_total",
			Help:      "Query attempts made by the relaxation engine.",
		},
		[]string{"strategy"},
	)

	// outcomesTotal counts finished searches.
	//
	// Labels:
	//   - outcome: "exact", "relaxed", "substituted", "exhausted" or "error"
	outcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gardenqa",
			Subsystem: "relax",
			Name:      "outcomes_total",
			Help:      "Relaxation searches by outcome.",
		},
		[]string{"outcome"},
	)
)
