package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const tracerName = "gardenqa/llm"

var (
	// callDuration measures generation calls.
	//
	// Labels:
	//   - provider: configured provider name
	//   - status: "success" or "error"
	callDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gardenqa",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Duration of text generation calls in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// errorsTotal counts failed generation calls by type.
	//
	// Labels:
	//   - provider: configured provider name
	//   - error_type: "timeout", "auth", "rate_limit", "server", "unknown"
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gardenqa",
			Subsystem: "llm",
			Name:      "errors_total",
			Help:      "Text generation errors by type.",
		},
		[]string{"provider", "error_type"},
	)
)

// classifyError maps an error to a label-safe type. Nil yields "".
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return "auth"
		case apiErr.StatusCode == 429:
			return "rate_limit"
		case apiErr.StatusCode >= 500:
			return "server"
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return "timeout"
	}
	return "unknown"
}

func recordCall(provider string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		errorsTotal.WithLabelValues(provider, classifyError(err)).Inc()
	}
	callDuration.WithLabelValues(provider, status).Observe(d.Seconds())
}
