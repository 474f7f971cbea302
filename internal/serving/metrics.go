package serving

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// generationsTotal lives here rather than in the HTTP layer because only the
// orchestrator sees the true outcome of streamed generations.
var generationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vlmd",
		Subsystem: "engine",
		Name:      "generations_total",
		Help:      "Completed generations by outcome",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(generationsTotal)
}

func generationOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
