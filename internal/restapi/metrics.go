package restapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/andi-rb/osmmatch/internal/matcherr"
)

// matchTotal and matchDuration are the ambient observability counters
// carried regardless of the spec's feature non-goals (SPEC_FULL.md §6:
// Non-goals scope out functionality, not instrumentation).
var (
	matchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "osmmatch",
		Name:      "match_requests_total",
		Help:      "Total map-match requests by outcome kind.",
	}, []string{"result"})

	matchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "osmmatch",
		Name:      "match_duration_seconds",
		Help:      "Map-match request latency by outcome kind.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"result"})
)

func observeMatch(kind matcherr.Kind, elapsed time.Duration) {
	label := string(kind)
	matchTotal.WithLabelValues(label).Inc()
	matchDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}
