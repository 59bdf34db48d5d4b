package broadcast

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyd/notifyd/internal/domain"
	errs "github.com/notifyd/notifyd/internal/errors"
	"github.com/notifyd/notifyd/internal/metrics"
	"github.com/notifyd/notifyd/internal/registry"
)

type mockConn struct {
	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	closed  bool
}

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, data)
	return nil
}

func (m *mockConn) Close(code int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) received() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

func testNotification(data map[string]any) domain.Notification {
	return domain.NewNotification("custom", domain.SenderNotificationService, data, time.Now())
}

func TestBroadcastDeliversToAllSessions(t *testing.T) {
	clock := clockwork.NewRealClock()
	reg := registry.New(10, clock)
	engine := NewEngine(reg, clock)

	conns := []*mockConn{{}, {}, {}}
	for i, conn := range conns {
		_, err := reg.Admit(string(rune('a'+i)), conn)
		require.NoError(t, err)
	}

	n := testNotification(map[string]any{"message": "hello"})
	delivered, err := engine.Broadcast(n)
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)
	assert.Equal(t, int64(3), engine.MessagesSent())

	for _, conn := range conns {
		frames := conn.received()
		require.Len(t, frames, 1)

		var got domain.Notification
		require.NoError(t, json.Unmarshal(frames[0], &got))
		assert.Equal(t, n.ID, got.ID)
		assert.Equal(t, "custom", got.Type)
		assert.Equal(t, "hello", got.Data["message"])
	}
}

func TestBroadcastToEmptyRegistry(t *testing.T) {
	clock := clockwork.NewRealClock()
	reg := registry.New(10, clock)
	engine := NewEngine(reg, clock)

	delivered, err := engine.Broadcast(testNotification(nil))
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
}

func TestBroadcastReapsFailedSessions(t *testing.T) {
	clock := clockwork.NewRealClock()
	reg := registry.New(10, clock)
	engine := NewEngine(reg, clock)

	healthy := &mockConn{}
	dead := &mockConn{sendErr: errors.New("connection reset")}
	_, err := reg.Admit("healthy", healthy)
	require.NoError(t, err)
	_, err = reg.Admit("dead", dead)
	require.NoError(t, err)

	failuresBefore := testutil.ToFloat64(metrics.DeliveryFailuresTotal)

	delivered, err := engine.Broadcast(testNotification(map[string]any{"message": "first"}))
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DeliveryFailuresTotal)-failuresBefore)

	// The failed session is gone; the healthy one keeps receiving.
	assert.False(t, reg.Contains("dead"))
	assert.True(t, reg.Contains("healthy"))
	assert.Equal(t, 1, reg.Count())

	delivered, err = engine.Broadcast(testNotification(map[string]any{"message": "second"}))
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Len(t, healthy.received(), 2)
}

func TestBroadcastSerializationFailure(t *testing.T) {
	clock := clockwork.NewRealClock()
	reg := registry.New(10, clock)
	engine := NewEngine(reg, clock)

	conn := &mockConn{}
	_, err := reg.Admit("a", conn)
	require.NoError(t, err)

	// Channels cannot be JSON-encoded.
	delivered, err := engine.Broadcast(testNotification(map[string]any{"bad": make(chan int)}))
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.TypeSerialization))
	assert.Equal(t, 0, delivered)

	// Nothing was sent and the session is untouched.
	assert.Empty(t, conn.received())
	assert.True(t, reg.Contains("a"))
}

func TestConcurrentBroadcastsPreserveOrderPerSession(t *testing.T) {
	clock := clockwork.NewRealClock()
	reg := registry.New(10, clock)
	engine := NewEngine(reg, clock)

	conn := &mockConn{}
	_, err := reg.Admit("a", conn)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = engine.Broadcast(testNotification(map[string]any{"message": "m"}))
		}()
	}
	wg.Wait()

	assert.Len(t, conn.received(), 20)
	assert.Equal(t, int64(20), engine.MessagesSent())
}
