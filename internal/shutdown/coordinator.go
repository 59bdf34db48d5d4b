// Package shutdown drives the orderly-stop state machine:
// Running → Draining → Stopped, with no cycles and no re-entry.
package shutdown

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/notifyd/notifyd/internal/broadcast"
	"github.com/notifyd/notifyd/internal/domain"
	"github.com/notifyd/notifyd/internal/metrics"
	"github.com/notifyd/notifyd/internal/registry"
	"github.com/notifyd/notifyd/internal/scheduler"
)

// Phase is the coordinator's state-machine position.
type Phase int32

const (
	PhaseRunning Phase = iota
	PhaseDraining
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseDraining:
		return "draining"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Info describes the shutdown state for status reporting.
type Info struct {
	Phase            string     `json:"phase"`
	Requested        bool       `json:"shutdown_requested"`
	RequestedAt      *time.Time `json:"shutdown_requested_at,omitempty"`
	ElapsedSeconds   float64    `json:"elapsed_seconds,omitempty"`
	RemainingSeconds float64    `json:"remaining_seconds,omitempty"`
	TimeoutSeconds   float64    `json:"timeout_seconds"`
}

// Coordinator sequences the stop: close admissions, stop the scheduler,
// warn clients, wait for voluntary closure bounded by the timeout, then
// force-close whatever remains.
type Coordinator struct {
	registry  *registry.Registry
	engine    *broadcast.Engine
	scheduler *scheduler.Scheduler
	clock     clockwork.Clock

	timeout      time.Duration
	pollInterval time.Duration

	phase atomic.Int32

	mu          sync.Mutex
	requestedAt time.Time

	done chan struct{}
}

func NewCoordinator(reg *registry.Registry, engine *broadcast.Engine, sched *scheduler.Scheduler, clock clockwork.Clock, timeout, pollInterval time.Duration) *Coordinator {
	return &Coordinator{
		registry:     reg,
		engine:       engine,
		scheduler:    sched,
		clock:        clock,
		timeout:      timeout,
		pollInterval: pollInterval,
		done:         make(chan struct{}),
	}
}

// RequestShutdown moves the coordinator from Running to Draining and blocks
// until the drain completes and the coordinator reaches Stopped. Subsequent
// calls return immediately; the sequence never runs twice.
func (c *Coordinator) RequestShutdown() {
	if !c.phase.CompareAndSwap(int32(PhaseRunning), int32(PhaseDraining)) {
		slog.Debug("Shutdown already requested")
		return
	}

	c.mu.Lock()
	c.requestedAt = c.clock.Now()
	c.mu.Unlock()
	metrics.ShutdownPhase.Set(1)

	slog.Info("Starting graceful shutdown sequence",
		"shutdown_timeout", c.timeout,
		"active_connections", c.registry.Count(),
	)

	// New admissions and ad-hoc notifications are refused from here on.
	c.registry.CloseAdmissions()
	c.scheduler.CloseIntake()
	c.scheduler.Stop()

	c.notifyClients()
	c.drain()

	c.phase.Store(int32(PhaseStopped))
	metrics.ShutdownPhase.Set(2)
	close(c.done)

	slog.Info("Graceful shutdown completed")
}

// notifyClients broadcasts a best-effort shutdown warning to open sessions.
func (c *Coordinator) notifyClients() {
	if c.registry.Count() == 0 {
		slog.Info("No active connections to notify about shutdown")
		return
	}

	notice := domain.NewNotification(domain.TypeShutdown, domain.SenderSystem, map[string]any{
		"message":  "Server is shutting down. Please reconnect later.",
		"priority": "high",
	}, c.clock.Now())

	recipients, err := c.engine.Broadcast(notice)
	if err != nil {
		slog.Error("Failed to broadcast shutdown notice", "error", err)
		return
	}
	slog.Info("Shutdown notice sent", "recipients", recipients)
}

// drain polls the registry until it empties or the timeout elapses,
// whichever comes first, then force-closes whatever remains.
func (c *Coordinator) drain() {
	if c.registry.Count() == 0 {
		slog.Info("All connections already closed")
		return
	}

	deadline := c.clock.Now().Add(c.timeout)

	ticker := c.clock.NewTicker(c.pollInterval)
	defer ticker.Stop()
	timer := c.clock.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		select {
		case <-timer.Chan():
			remaining := c.registry.Count()
			slog.Warn("Shutdown timeout reached", "remaining_connections", remaining, "timeout", c.timeout)
			closed := c.registry.ForceCloseAll(registry.CloseGoingAway, "server shutting down")
			metrics.ForceClosedTotal.Add(float64(closed))
			return
		case <-ticker.Chan():
			active := c.registry.Count()
			if active == 0 {
				slog.Info("All connections closed voluntarily")
				return
			}
			slog.Info("Waiting for connections to close",
				"active_connections", active,
				"remaining_time", deadline.Sub(c.clock.Now()),
			)
		}
	}
}

// Phase returns the coordinator's current state.
func (c *Coordinator) Phase() Phase {
	return Phase(c.phase.Load())
}

// Draining reports whether shutdown has begun (Draining or Stopped).
func (c *Coordinator) Draining() bool {
	return c.Phase() != PhaseRunning
}

// Done is closed once the coordinator reaches Stopped.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Info returns the shutdown state for status endpoints.
func (c *Coordinator) Info() Info {
	phase := c.Phase()
	info := Info{
		Phase:          phase.String(),
		Requested:      phase != PhaseRunning,
		TimeoutSeconds: c.timeout.Seconds(),
	}

	if info.Requested {
		c.mu.Lock()
		requestedAt := c.requestedAt
		c.mu.Unlock()

		at := requestedAt.UTC()
		info.RequestedAt = &at
		elapsed := c.clock.Since(requestedAt)
		info.ElapsedSeconds = elapsed.Seconds()
		if remaining := c.timeout - elapsed; remaining > 0 && phase == PhaseDraining {
			info.RemainingSeconds = remaining.Seconds()
		}
	}
	return info
}
