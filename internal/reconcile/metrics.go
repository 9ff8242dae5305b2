package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Candidate kinds.
const (
	kindUpdate      = "update"
	kindDeprovision = "deprovision"
)

var (
	candidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resource_cloud",
			Subsystem: "reconcile",
			Name:      "candidates_total",
			Help:      "Instances found needing action, by kind",
		},
		[]string{"kind"},
	)

	enqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resource_cloud",
			Subsystem: "reconcile",
			Name:      "enqueued_total",
			Help:      "Instances enqueued for an update, by kind",
		},
		[]string{"kind"},
	)

	deferredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resource_cloud",
			Subsystem: "reconcile",
			Name:      "deferred_total",
			Help:      "Candidates left for a later tick by the batch cap, by kind",
		},
		[]string{"kind"},
	)

	passDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "resource_cloud",
			Subsystem: "reconcile",
			Name:      "duration_seconds",
			Help:      "Duration of a reconciliation pass in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(candidatesTotal, enqueuedTotal, deferredTotal, passDuration)
}
