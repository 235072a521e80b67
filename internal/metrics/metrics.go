// Package metrics holds the prometheus collectors shared by the agent and the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sample results.
const (
	SampleAccepted         = "accepted"
	SampleRejectedAccuracy = "rejected_accuracy"
	SampleRejectedDistance = "rejected_distance"
	SampleUnavailable      = "unavailable"
)

// Report results.
const (
	ReportSuccess = "success"
	ReportFailure = "failure"
	ReportSkipped = "skipped"
)

// Gateway ingest results.
const (
	IngestAccepted = "accepted"
	IngestIgnored  = "ignored"
	IngestRejected = "rejected"
	IngestInvalid  = "invalid"
)

var (
	// LocationSamples counts sampled fixes by filter outcome.
	LocationSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "agent",
			Name:      "location_samples_total",
			Help:      "Location fixes sampled by the tracking engine, by filter outcome.",
		},
		[]string{"result"},
	)

	// LocationReports counts telemetry POSTs by outcome.
	LocationReports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "agent",
			Name:      "location_reports_total",
			Help:      "Location reports sent to the backend, by outcome.",
		},
		[]string{"result"},
	)

	// TrackedOrders is the size of the engine's active order set.
	TrackedOrders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "courier",
			Subsystem: "agent",
			Name:      "tracked_orders",
			Help:      "Orders currently receiving location updates.",
		},
	)

	// PollLoops counts poll loop starts and stops.
	PollLoops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "agent",
			Name:      "poll_loops_total",
			Help:      "Tracking poll loop transitions.",
		},
		[]string{"transition"},
	)

	// TokenRefreshes counts refresh attempts by outcome.
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "agent",
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts, by outcome.",
		},
		[]string{"result"},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "courier",
			Subsystem: "agent",
			Name:      "circuit_breaker_state",
			Help:      "Transport circuit breaker state (0 closed, 1 half-open, 2 open).",
		},
		[]string{"name"},
	)

	// LocationUpdatesIngested counts location updates accepted by the gateway.
	LocationUpdatesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "gateway",
			Name:      "location_updates_total",
			Help:      "Location updates received by the gateway, by outcome.",
		},
		[]string{"result"},
	)
)
