package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	retrievals    prometheus.Counter
	branchErrors  *prometheus.CounterVec
	fetchFailures prometheus.Counter
	citations     prometheus.Histogram
	promptRunes   prometheus.Histogram
	duration      *prometheus.HistogramVec
	droppedEvents prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		retrievals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cpla",
			Subsystem: "retrieval",
			Name:      "completed_total",
			Help:      "Total retrieval pipeline invocations",
		}),
		// Labels: branch (external, internal)
		branchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cpla",
			Subsystem: "retrieval",
			Name:      "branch_errors_total",
			Help:      "Retrieval branches that produced no results because of an error",
		}, []string{"branch"}),
		fetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cpla",
			Subsystem: "retrieval",
			Name:      "fetch_failures_total",
			Help:      "External record fetches dropped after a timeout or missing record",
		}),
		citations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cpla",
			Subsystem: "retrieval",
			Name:      "citations",
			Help:      "Citations per assembled context",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 20},
		}),
		promptRunes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cpla",
			Subsystem: "retrieval",
			Name:      "prompt_runes",
			Help:      "Size of the assembled context in runes",
			Buckets:   prometheus.LinearBuckets(0, 1000, 9),
		}),
		// Labels: stage (external, internal, total)
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cpla",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}, []string{"stage"}),
		droppedEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cpla",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Retrieval events discarded because the consumer fell behind",
		}),
	}
}
