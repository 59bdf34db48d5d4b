// Package broadcast implements the notification fan-out engine.
//
// A broadcast serializes the notification once, iterates a registry
// snapshot, and reaps any session whose delivery fails. Best effort by
// design: one dead peer never fails or delays delivery to the others, and
// there is no per-peer retry.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/notifyd/notifyd/internal/domain"
	errs "github.com/notifyd/notifyd/internal/errors"
	"github.com/notifyd/notifyd/internal/metrics"
	"github.com/notifyd/notifyd/internal/registry"
)

// Engine delivers notifications to every open session in the registry.
type Engine struct {
	registry *registry.Registry
	clock    clockwork.Clock

	// mu serializes broadcasts so a session receives notifications in the
	// order Broadcast calls were issued.
	mu sync.Mutex

	messagesSent atomic.Int64
}

func NewEngine(reg *registry.Registry, clock clockwork.Clock) *Engine {
	return &Engine{
		registry: reg,
		clock:    clock,
	}
}

// Broadcast sends the notification to every session in a registry snapshot
// and returns the number of sessions that received it. Sessions whose
// delivery fails are removed from the registry so dead peers are reaped
// opportunistically. The only caller-visible failure is a notification
// payload that cannot be serialized.
func (e *Engine) Broadcast(n domain.Notification) (int, error) {
	data, err := json.Marshal(n)
	if err != nil {
		slog.Error("Failed to marshal notification", "notification_id", n.ID, "type", n.Type, "error", err)
		return 0, errs.SerializationError(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.clock.Now()
	snapshot := e.registry.Snapshot()

	delivered := 0
	var failed []string
	for _, session := range snapshot {
		if err := session.Send(data); err != nil {
			slog.Warn("Delivery failed, reaping session",
				"client_id", session.ClientID(),
				"notification_id", n.ID,
				"error", err,
			)
			metrics.DeliveryFailuresTotal.Inc()
			failed = append(failed, session.ClientID())
			continue
		}
		delivered++
		e.messagesSent.Add(1)
		metrics.MessagesSentTotal.Inc()
	}

	for _, clientID := range failed {
		e.registry.Remove(clientID)
	}

	metrics.BroadcastsTotal.WithLabelValues(n.Type).Inc()
	metrics.BroadcastDuration.Observe(e.clock.Since(start).Seconds())

	slog.Debug("Broadcast completed",
		"notification_id", n.ID,
		"type", n.Type,
		"delivered", delivered,
		"failed", len(failed),
	)
	return delivered, nil
}

// MessagesSent returns the monotonic count of successful per-session deliveries.
func (e *Engine) MessagesSent() int64 {
	return e.messagesSent.Load()
}
