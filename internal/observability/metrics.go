package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchkit",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "launchkit",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	handleAllocs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchkit",
			Subsystem: "native",
			Name:      "handles_allocated_total",
			Help:      "Native handles allocated, by kind.",
		},
		[]string{"native", "kind"},
	)
	handleFrees = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchkit",
			Subsystem: "native",
			Name:      "handles_freed_total",
			Help:      "Native handles freed, including children freed with their root.",
		},
		[]string{"native"},
	)
	invalidFrees = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchkit",
			Subsystem: "native",
			Name:      "invalid_frees_total",
			Help:      "Free calls on handles that were not live.",
		},
		[]string{"native"},
	)
	roundTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchkit",
			Subsystem: "session",
			Name:      "round_trips_total",
			Help:      "Request/reply round trips issued by the session client.",
		},
		[]string{"network", "success"},
	)
	roundTripDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "launchkit",
			Subsystem: "session",
			Name:      "round_trip_duration_seconds",
			Help:      "Session round trip duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"network", "success"},
	)
	framesServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchkit",
			Subsystem: "session",
			Name:      "frames_served_total",
			Help:      "Request frames answered by the session server.",
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			handleAllocs, handleFrees, invalidFrees,
			roundTrips, roundTripDuration, framesServed,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordHandleAlloc(native, kind string) {
	RegisterMetrics()
	handleAllocs.WithLabelValues(native, kind).Inc()
}

func RecordHandleFrees(native string, n int) {
	RegisterMetrics()
	handleFrees.WithLabelValues(native).Add(float64(n))
}

func RecordInvalidFree(native string) {
	RegisterMetrics()
	invalidFrees.WithLabelValues(native).Inc()
}

func RecordRoundTrip(network string, duration time.Duration, success bool) {
	RegisterMetrics()
	successLabel := strconv.FormatBool(success)
	roundTrips.WithLabelValues(network, successLabel).Inc()
	roundTripDuration.WithLabelValues(network, successLabel).Observe(duration.Seconds())
}

// RecordFrameServed counts one answered request. outcome is "reply",
// "fault" or "error".
func RecordFrameServed(outcome string) {
	RegisterMetrics()
	framesServed.WithLabelValues(outcome).Inc()
}
