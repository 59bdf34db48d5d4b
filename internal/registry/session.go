package registry

import (
	"sync"
	"time"

	"github.com/notifyd/notifyd/internal/domain"
)

// SessionState is the lifecycle state of a session.
type SessionState int32

const (
	StateOpen SessionState = iota
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one accepted client connection with its identity and timestamps.
// Owned exclusively by the Registry once admitted; other components only see
// it through short-lived snapshot borrows.
type Session struct {
	clientID    string
	conn        domain.Conn
	connectedAt time.Time

	mu       sync.RWMutex
	lastSeen time.Time
	state    SessionState
}

func newSession(clientID string, conn domain.Conn, now time.Time) *Session {
	return &Session{
		clientID:    clientID,
		conn:        conn,
		connectedAt: now,
		lastSeen:    now,
		state:       StateOpen,
	}
}

// ClientID returns the session's unique identifier.
func (s *Session) ClientID() string { return s.clientID }

// ConnectedAt returns the admission timestamp.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// LastSeen returns the time of the last inbound activity (including pongs).
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Send pushes one serialized message through the session's transport handle.
// A session that was concurrently removed may still receive one delivery
// attempt from an in-flight broadcast snapshot; the transport rejects it.
func (s *Session) Send(data []byte) error {
	return s.conn.Send(data)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// close terminates the transport. Only the registry calls this.
func (s *Session) close(code int, reason string) {
	_ = s.conn.Close(code, reason)
}
