// Package metrics holds the Prometheus collectors of the map core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MapEvents counts engine events received per kind (load, mousemove, click, ...).
	MapEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackmap_map_events_total",
			Help: "Map engine events received, by kind",
		},
		[]string{"kind"},
	)

	// MapEventsDropped counts events ignored before load or by throttling.
	MapEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackmap_map_events_dropped_total",
			Help: "Map engine events dropped, by reason",
		},
		[]string{"reason"},
	)

	// FeatureStateErrors counts swallowed render-state mutation failures.
	FeatureStateErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackmap_feature_state_errors_total",
			Help: "Feature-state mutations that failed and were ignored",
		},
		[]string{"key", "op"},
	)

	// CacheFetches counts feature cache population fetches by result.
	CacheFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackmap_feature_cache_fetches_total",
			Help: "Feature cache population fetches, by source and result",
		},
		[]string{"source", "result"},
	)

	// CacheLookups counts feature cache lookups by result (hit/miss).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackmap_feature_cache_lookups_total",
			Help: "Feature cache lookups, by result",
		},
		[]string{"result"},
	)

	// CachedFeatures is the number of features held by the feature cache.
	CachedFeatures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slackmap_feature_cache_size",
			Help: "Number of features in the feature cache",
		},
	)

	// ActiveSessions is the number of open map sessions.
	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slackmap_sessions_active",
			Help: "Open map sessions, by kind",
		},
		[]string{"kind"},
	)

	// BackendRequestDuration observes backend collaborator calls.
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slackmap_backend_request_duration_seconds",
			Help:    "Duration of backend API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
)

// ObserveBackend records one backend call.
func ObserveBackend(operation, status string, started time.Time) {
	BackendRequestDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}

var (
	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slackmap_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// CircuitBreakerTransitions counts breaker state changes.
	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackmap_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)
