package metrics

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// ConnectionStats is the registry surface the aggregator reads.
type ConnectionStats interface {
	Count() int
	TotalConnections() int64
}

// DeliveryStats is the broadcast engine surface the aggregator reads.
type DeliveryStats interface {
	MessagesSent() int64
}

// SchedulerStats is the notification scheduler surface the aggregator reads.
type SchedulerStats interface {
	NotificationsSent() int64
	Running() bool
	Interval() time.Duration
}

// Snapshot is a point-in-time view of the server's counters and gauges.
// Derived on demand, never stored.
type Snapshot struct {
	ActiveConnections    int       `json:"active_connections"`
	TotalConnections     int64     `json:"total_connections"`
	MessagesSent         int64     `json:"messages_sent"`
	NotificationsSent    int64     `json:"notifications_sent"`
	SchedulerRunning     bool      `json:"scheduler_running"`
	NotificationInterval float64   `json:"notification_interval_seconds"`
	UptimeSeconds        float64   `json:"uptime_seconds"`
	StartTime            time.Time `json:"start_time"`
}

// Aggregator derives metric snapshots from registry and scheduler state.
// Pure read side: it never mutates the components it observes.
type Aggregator struct {
	connections ConnectionStats
	deliveries  DeliveryStats
	scheduler   SchedulerStats
	clock       clockwork.Clock
	startTime   time.Time
}

func NewAggregator(connections ConnectionStats, deliveries DeliveryStats, scheduler SchedulerStats, clock clockwork.Clock) *Aggregator {
	return &Aggregator{
		connections: connections,
		deliveries:  deliveries,
		scheduler:   scheduler,
		clock:       clock,
		startTime:   clock.Now(),
	}
}

// Snapshot returns the current derived metrics.
func (a *Aggregator) Snapshot() Snapshot {
	return Snapshot{
		ActiveConnections:    a.connections.Count(),
		TotalConnections:     a.connections.TotalConnections(),
		MessagesSent:         a.deliveries.MessagesSent(),
		NotificationsSent:    a.scheduler.NotificationsSent(),
		SchedulerRunning:     a.scheduler.Running(),
		NotificationInterval: a.scheduler.Interval().Seconds(),
		UptimeSeconds:        a.clock.Since(a.startTime).Seconds(),
		StartTime:            a.startTime.UTC(),
	}
}
