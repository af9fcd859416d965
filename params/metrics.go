package params

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// defaultsApplied counts parameters filled from the defaults table.
	//
	// Labels:
	//   - param: parameter name
	defaultsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gardenqa",
			Subsystem: "params",
			Name:      "defaults_total",
			Help:      "Parameters bound from semantic defaults.",
		},
		[]string{"param"},
	)

	// substitutions counts queries replaced by the safe fallback query.
	substitutions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gardenqa",
			Subsystem: "params",
			Name:      "substitutions_total",
			Help:      "Queries replaced by the safe fallback after a binding mismatch.",
		},
	)
)
