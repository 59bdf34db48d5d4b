// Package scheduler emits a periodic test notification and accepts ad-hoc
// notifications for immediate delivery.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/notifyd/notifyd/internal/broadcast"
	"github.com/notifyd/notifyd/internal/domain"
	errs "github.com/notifyd/notifyd/internal/errors"
	"github.com/notifyd/notifyd/internal/metrics"
	"github.com/notifyd/notifyd/internal/registry"
)

// Scheduler drives the repeating notification timer. The loop is an
// explicit goroutine with a stop channel rather than rescheduled timers,
// so Stop is deterministic against an in-flight tick.
type Scheduler struct {
	engine   *broadcast.Engine
	registry *registry.Registry
	clock    clockwork.Clock
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	intakeClosed atomic.Bool
	counter      atomic.Int64
	startTime    time.Time
}

func New(engine *broadcast.Engine, reg *registry.Registry, clock clockwork.Clock, interval time.Duration) *Scheduler {
	return &Scheduler{
		engine:    engine,
		registry:  reg,
		clock:     clock,
		interval:  interval,
		startTime: clock.Now(),
	}
}

// Start begins the periodic timer. Calling Start while already running is
// a no-op; the tick rate never doubles.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		slog.Warn("Periodic notifications already running")
		return
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running = true
	metrics.SchedulerRunning.Set(1)

	go s.run(s.stopCh, s.doneCh)

	slog.Info("Started periodic notifications", "interval", s.interval)
}

// Stop cancels the timer. A tick already in flight completes before Stop
// returns. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		slog.Debug("Periodic notifications not running")
		return
	}

	close(s.stopCh)
	<-s.doneCh
	s.running = false
	metrics.SchedulerRunning.Set(0)

	slog.Info("Stopped periodic notifications", "notifications_sent", s.counter.Load())
}

func (s *Scheduler) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.Chan():
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	notification := s.buildTestNotification()
	metrics.SchedulerTicksTotal.Inc()

	recipients, err := s.engine.Broadcast(notification)
	if err != nil {
		slog.Error("Periodic notification broadcast failed", "error", err)
		return
	}
	slog.Debug("Periodic notification sent", "recipients", recipients, "counter", s.counter.Load())
}

func (s *Scheduler) buildTestNotification() domain.Notification {
	counter := s.counter.Add(1)
	now := s.clock.Now()

	return domain.NewNotification(domain.TypeTestNotification, domain.SenderNotificationService, map[string]any{
		"message":            fmt.Sprintf("Test notification #%d", counter),
		"counter":            counter,
		"uptime_seconds":     s.clock.Since(s.startTime).Seconds(),
		"active_connections": s.registry.Count(),
		"server_time":        now.UTC().Format(time.RFC3339Nano),
	}, now)
}

// SendNow bypasses the timer for ad-hoc notifications. Works while the
// periodic timer is stopped, but is rejected once the server is draining.
func (s *Scheduler) SendNow(n domain.Notification) (int, error) {
	if s.intakeClosed.Load() {
		return 0, errs.UnavailableError("server is shutting down, cannot send notifications")
	}
	return s.engine.Broadcast(n)
}

// CloseIntake makes all subsequent SendNow calls fail with an unavailable
// error. Called once by the shutdown coordinator at drain start.
func (s *Scheduler) CloseIntake() {
	s.intakeClosed.Store(true)
}

// Running reports whether the periodic timer is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NotificationsSent returns the count of periodic broadcast calls issued.
func (s *Scheduler) NotificationsSent() int64 {
	return s.counter.Load()
}

// Interval returns the configured tick period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}
