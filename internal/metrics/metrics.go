// Package metrics provides Prometheus metrics for the portal.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration measures handler latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portal",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// GateRequestsTotal counts requests seen by the request gate.
	GateRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "gate_requests_total",
			Help:      "Requests forwarded by the request gate, by whether the matcher applied",
		},
		[]string{"matched"},
	)

	// UserSyncTotal counts user sync outcomes: created, confirmed, failed.
	UserSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "user_sync_total",
			Help:      "User sync calls by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordRequest records one served request.
func RecordRequest(method, route string, status int, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// RecordGate records one pass through the request gate.
func RecordGate(matched bool) {
	GateRequestsTotal.WithLabelValues(strconv.FormatBool(matched)).Inc()
}

// RecordSync records a user sync outcome.
func RecordSync(outcome string) {
	UserSyncTotal.WithLabelValues(outcome).Inc()
}
