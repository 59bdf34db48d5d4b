package scheduler

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
)

type mockConn struct {
	mu   sync.Mutex
	sent [][]byte
}

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
	return nil
}

func (m *mockConn) Close(code int, reason string) error { return nil }

func (m *mockConn) received() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *mockConn) waitForFrames(t *testing.T, n int) [][]byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if frames := m.received(); len(frames) >= n {
			return frames
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, got %d", n, len(m.received()))
	return nil
}

func newTestScheduler(t *testing.T, interval time.Duration) (*Scheduler, *registry.Registry, *mockConn) {
	t.Helper()

	clock := clockwork.NewRealClock()
	reg := registry.New(10, clock)
	engine := broadcast.NewEngine(reg, clock)
	sched := New(engine, reg, clock, interval)
	t.Cleanup(sched.Stop)

	conn := &mockConn{}
	_, err := reg.Admit("a", conn)
	require.NoError(t, err)

	return sched, reg, conn
}

func TestSchedulerTicksAtInterval(t *testing.T) {
	sched, _, conn := newTestScheduler(t, 20*time.Millisecond)

	sched.Start()
	assert.True(t, sched.Running())

	frames := conn.waitForFrames(t, 3)

	var first domain.Notification
	require.NoError(t, json.Unmarshal(frames[0], &first))
	assert.Equal(t, domain.TypeTestNotification, first.Type)
	assert.Equal(t, domain.SenderNotificationService, first.Sender)
	assert.Equal(t, "Test notification #1", first.Data["message"])
	assert.EqualValues(t, 1, first.Data["counter"])
	assert.EqualValues(t, 1, first.Data["active_connections"])
	assert.Contains(t, first.Data, "uptime_seconds")
	assert.Contains(t, first.Data, "server_time")

	var second domain.Notification
	require.NoError(t, json.Unmarshal(frames[1], &second))
	assert.EqualValues(t, 2, second.Data["counter"])
	assert.NotEqual(t, first.ID, second.ID)

	assert.GreaterOrEqual(t, sched.NotificationsSent(), int64(3))
}

func TestStartIsIdempotent(t *testing.T) {
	sched, _, conn := newTestScheduler(t, 50*time.Millisecond)

	sched.Start()
	sched.Start()

	conn.waitForFrames(t, 2)

	// A doubled timer would have produced counters out of step with the
	// frame count; each frame carries the next counter exactly once.
	frames := conn.received()
	for i, frame := range frames {
		var n domain.Notification
		require.NoError(t, json.Unmarshal(frame, &n))
		assert.EqualValues(t, i+1, n.Data["counter"])
	}
}

func TestStopHaltsTicks(t *testing.T) {
	sched, _, conn := newTestScheduler(t, 20*time.Millisecond)

	sched.Start()
	conn.waitForFrames(t, 1)

	sched.Stop()
	assert.False(t, sched.Running())

	counted := len(conn.received())
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, conn.received(), counted)

	// Stop again is a no-op.
	sched.Stop()
}

func TestSendNowWorksWhileStopped(t *testing.T) {
	sched, _, conn := newTestScheduler(t, time.Hour)

	n := domain.NewNotification("custom", domain.SenderNotificationService, map[string]any{"message": "hi"}, time.Now())
	delivered, err := sched.SendNow(n)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Len(t, conn.received(), 1)

	// Ad-hoc sends do not advance the periodic counter.
	assert.Equal(t, int64(0), sched.NotificationsSent())
}

func TestSendNowRejectedAfterCloseIntake(t *testing.T) {
	sched, _, conn := newTestScheduler(t, time.Hour)

	sched.CloseIntake()

	n := domain.NewNotification("custom", domain.SenderNotificationService, nil, time.Now())
	delivered, err := sched.SendNow(n)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.TypeUnavailable))
	assert.Equal(t, 0, delivered)
	assert.Empty(t, conn.received())
}

func TestIntervalIsReported(t *testing.T) {
	sched, _, _ := newTestScheduler(t, 10*time.Second)
	assert.Equal(t, 10*time.Second, sched.Interval())
}
