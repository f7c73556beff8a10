package replace

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dshills/textstorm/internal/surface"
)

var (
	metricTierAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "textstorm",
		Name:      "replace_tier_attempts_total",
		Help:      "Replacement tier attempts by tier and verified result.",
	}, []string{"tier", "result"})
	metricReplacements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "textstorm",
		Name:      "replacements_total",
		Help:      "Completed replacement operations by editor kind and result.",
	}, []string{"kind", "result"})
)

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func recordTier(t Tier, ok bool) {
	metricTierAttempts.WithLabelValues(t.String(), result(ok)).Inc()
}

func recordReplacement(k surface.Kind, ok bool) {
	metricReplacements.WithLabelValues(k.String(), result(ok)).Inc()
}
