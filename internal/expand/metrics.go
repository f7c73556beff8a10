package expand

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricExpansions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "textstorm",
		Name:      "expansions_total",
		Help:      "Expansion attempts by branch and outcome.",
	}, []string{"branch", "result"})
	metricDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "textstorm",
		Name:      "signals_dropped_total",
		Help:      "Signals dropped because a controller queue was full.",
	})
)

// Expansion branches.
const (
	branchStatic  = "static"
	branchForm    = "form"
	branchDynamic = "dynamic"
)

// Expansion outcomes.
const (
	resultSuccess   = "success"
	resultFailure   = "failure"
	resultCanceled  = "canceled"
	resultDetached  = "detached"
	resultContended = "contended"
)

func recordExpansion(branch, result string) {
	metricExpansions.WithLabelValues(branch, result).Inc()
}
