// Package metrics defines Prometheus collectors and the read-side
// aggregator exposed to the HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry Metrics
var (
	// ConnectionsCurrent tracks the number of currently open sessions
	ConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_current",
			Help: "Current number of open WebSocket sessions",
		},
	)

	// ConnectionsTotal tracks admission attempts by result
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total admission attempts by result (accepted/rejected_capacity/rejected_duplicate/rejected_draining)",
		},
		[]string{"result"},
	)

	// ConnectionDuration tracks session lifetime in seconds
	ConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_connection_duration_seconds",
			Help:    "WebSocket session duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
		},
	)
)

// Broadcast Metrics
var (
	// MessagesSentTotal counts successful per-session deliveries
	MessagesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_messages_sent_total",
			Help: "Total messages successfully delivered to individual sessions",
		},
	)

	// DeliveryFailuresTotal counts per-session delivery failures (session reaped)
	DeliveryFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_delivery_failures_total",
			Help: "Total per-session delivery failures; failed sessions are removed from the registry",
		},
	)

	// BroadcastsTotal counts broadcast calls by notification type
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Total broadcast calls by notification type",
		},
		[]string{"type"},
	)

	// BroadcastDuration tracks full fan-out duration per broadcast
	BroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broadcast_duration_seconds",
			Help:    "Broadcast fan-out duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
)

// Scheduler Metrics
var (
	// SchedulerTicksTotal counts periodic notification ticks
	SchedulerTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_ticks_total",
			Help: "Total periodic notification ticks",
		},
	)

	// SchedulerRunning is 1 while the periodic timer is active
	SchedulerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_running",
			Help: "1 if the periodic notification timer is running, 0 otherwise",
		},
	)
)

// Shutdown Metrics
var (
	// ShutdownPhase tracks the coordinator state (0=running, 1=draining, 2=stopped)
	ShutdownPhase = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdown_phase",
			Help: "Current shutdown phase (0=running, 1=draining, 2=stopped)",
		},
	)

	// ForceClosedTotal counts sessions force-closed at drain timeout
	ForceClosedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shutdown_force_closed_connections_total",
			Help: "Total sessions force-closed because the drain timeout elapsed",
		},
	)
)

// Transport Metrics
var (
	// RateLimitedTotal counts WebSocket dials rejected by the per-IP rate limiter
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_connections_rate_limited_total",
			Help: "Total WebSocket connection attempts rejected by per-IP rate limiting",
		},
	)

	// ClientMessagesTotal counts inbound client messages by type
	ClientMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_client_messages_total",
			Help: "Total inbound client messages by type (ping/pong/status_request/invalid)",
		},
		[]string{"type"},
	)
)
