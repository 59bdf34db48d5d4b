package shutdown

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyd/notifyd/internal/broadcast"
	"github.com/notifyd/notifyd/internal/domain"
	errs "github.com/notifyd/notifyd/internal/errors"
	"github.com/notifyd/notifyd/internal/registry"
	"github.com/notifyd/notifyd/internal/scheduler"
)

type mockConn struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
	code   int
}

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
	return nil
}

func (m *mockConn) Close(code int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.code = code
	return nil
}

func (m *mockConn) closedWith() (bool, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed, m.code
}

func (m *mockConn) received() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

type fixture struct {
	registry    *registry.Registry
	scheduler   *scheduler.Scheduler
	coordinator *Coordinator
}

func newFixture(t *testing.T, timeout, pollInterval time.Duration) *fixture {
	t.Helper()

	clock := clockwork.NewRealClock()
	reg := registry.New(10, clock)
	engine := broadcast.NewEngine(reg, clock)
	sched := scheduler.New(engine, reg, clock, time.Hour)
	t.Cleanup(sched.Stop)

	return &fixture{
		registry:    reg,
		scheduler:   sched,
		coordinator: NewCoordinator(reg, engine, sched, clock, timeout, pollInterval),
	}
}

func waitDone(t *testing.T, c *Coordinator, within time.Duration) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(within):
		t.Fatal("coordinator did not reach stopped in time")
	}
}

func TestShutdownWithNoConnections(t *testing.T) {
	f := newFixture(t, time.Second, 10*time.Millisecond)
	f.scheduler.Start()

	assert.Equal(t, PhaseRunning, f.coordinator.Phase())
	f.coordinator.RequestShutdown()

	assert.Equal(t, PhaseStopped, f.coordinator.Phase())
	assert.False(t, f.registry.Accepting())
	assert.False(t, f.scheduler.Running())
	waitDone(t, f.coordinator, time.Second)
}

func TestShutdownNotifiesClientsAndDrainsVoluntarily(t *testing.T) {
	f := newFixture(t, 5*time.Second, 10*time.Millisecond)

	conn := &mockConn{}
	_, err := f.registry.Admit("a", conn)
	require.NoError(t, err)

	go func() {
		// Simulate the client disconnecting after the warning lands.
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if len(conn.received()) > 0 {
				f.registry.Remove("a")
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	start := time.Now()
	f.coordinator.RequestShutdown()

	// Voluntary closure means the full timeout is never awaited.
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, PhaseStopped, f.coordinator.Phase())
	assert.Equal(t, 0, f.registry.Count())

	frames := conn.received()
	require.NotEmpty(t, frames)
	var notice domain.Notification
	require.NoError(t, json.Unmarshal(frames[0], &notice))
	assert.Equal(t, domain.TypeShutdown, notice.Type)
	assert.Equal(t, domain.SenderSystem, notice.Sender)
	assert.Equal(t, "Server is shutting down. Please reconnect later.", notice.Data["message"])
	assert.Equal(t, "high", notice.Data["priority"])
}

func TestShutdownForceClosesAtTimeout(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond, 10*time.Millisecond)

	conn := &mockConn{}
	_, err := f.registry.Admit("stubborn", conn)
	require.NoError(t, err)

	f.coordinator.RequestShutdown()

	assert.Equal(t, PhaseStopped, f.coordinator.Phase())
	assert.Equal(t, 0, f.registry.Count())

	closed, code := conn.closedWith()
	assert.True(t, closed)
	assert.Equal(t, registry.CloseGoingAway, code)
}

func TestShutdownRejectsLateAdmissionsAndSends(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond, 10*time.Millisecond)

	f.coordinator.RequestShutdown()

	_, err := f.registry.Admit("late", &mockConn{})
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.TypeUnavailable))

	n := domain.NewNotification("custom", domain.SenderNotificationService, nil, time.Now())
	_, err = f.scheduler.SendNow(n)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.TypeUnavailable))
}

func TestRequestShutdownIsIdempotent(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond, 10*time.Millisecond)

	f.coordinator.RequestShutdown()
	require.Equal(t, PhaseStopped, f.coordinator.Phase())

	// Second call returns immediately without re-running the sequence.
	done := make(chan struct{})
	go func() {
		f.coordinator.RequestShutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second RequestShutdown did not return")
	}
	assert.Equal(t, PhaseStopped, f.coordinator.Phase())
}

func TestConcurrentRequestsRunSequenceOnce(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond, 10*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.coordinator.RequestShutdown()
		}()
	}
	wg.Wait()

	waitDone(t, f.coordinator, time.Second)
	assert.Equal(t, PhaseStopped, f.coordinator.Phase())
}

func TestDrainingReporting(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond, 10*time.Millisecond)

	assert.False(t, f.coordinator.Draining())
	info := f.coordinator.Info()
	assert.Equal(t, "running", info.Phase)
	assert.False(t, info.Requested)
	assert.Nil(t, info.RequestedAt)

	f.coordinator.RequestShutdown()

	assert.True(t, f.coordinator.Draining())
	info = f.coordinator.Info()
	assert.Equal(t, "stopped", info.Phase)
	assert.True(t, info.Requested)
	require.NotNil(t, info.RequestedAt)
	assert.GreaterOrEqual(t, info.ElapsedSeconds, 0.0)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "running", PhaseRunning.String())
	assert.Equal(t, "draining", PhaseDraining.String())
	assert.Equal(t, "stopped", PhaseStopped.String())
	assert.Equal(t, "unknown", Phase(99).String())
}
