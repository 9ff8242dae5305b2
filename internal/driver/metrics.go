package driver

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Driver call results.
const (
	resultOK          = "ok"
	resultError       = "error"
	resultUnavailable = "unavailable"
)

var (
	driverCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resource_cloud",
			Subsystem: "driver",
			Name:      "calls_total",
			Help:      "Driver operations dispatched by the gateway, by driver, operation and result",
		},
		[]string{"driver", "operation", "result"},
	)

	driverCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "resource_cloud",
			Subsystem: "driver",
			Name:      "call_duration_seconds",
			Help:      "Duration of driver operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"driver", "operation"},
	)
)

func init() {
	prometheus.MustRegister(driverCallsTotal, driverCallDuration)
}

func recordCall(driver, operation, result string, seconds float64) {
	driverCallsTotal.WithLabelValues(driver, operation, result).Inc()
	if result == resultOK || result == resultError {
		driverCallDuration.WithLabelValues(driver, operation).Observe(seconds)
	}
}
