// Package registry implements the concurrency-safe store of open sessions.
//
// A single mutex guards the session map so that admission checks
// (capacity + uniqueness) and insertion are one atomic step, and broadcasts
// iterate a point-in-time snapshot instead of holding the lock during I/O.
package registry

import (
	"encoding/hex"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/notifyd/notifyd/internal/domain"
	errs "github.com/notifyd/notifyd/internal/errors"
	"github.com/notifyd/notifyd/internal/metrics"
)

// CloseGoingAway is the close code used when the server terminates sessions
// during shutdown.
const CloseGoingAway = 1001

// Registry is the authoritative set of currently open sessions.
type Registry struct {
	clock clockwork.Clock
	max   int

	mu        sync.RWMutex
	sessions  map[string]*Session
	accepting bool

	totalConnections atomic.Int64
}

func New(maxConnections int, clock clockwork.Clock) *Registry {
	return &Registry{
		clock:     clock,
		max:       maxConnections,
		sessions:  make(map[string]*Session),
		accepting: true,
	}
}

// Admit registers a new session for the given transport handle.
// If clientID is empty a fresh unique one is generated. The capacity and
// uniqueness checks happen atomically with the insertion: two admissions
// racing for the last slot or the same id yield exactly one success.
func (r *Registry) Admit(clientID string, conn domain.Conn) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.accepting {
		metrics.ConnectionsTotal.WithLabelValues("rejected_draining").Inc()
		return nil, errs.UnavailableError("server is shutting down")
	}

	if clientID == "" {
		clientID = r.generateClientID()
	} else if _, exists := r.sessions[clientID]; exists {
		slog.Warn("Rejecting duplicate client", "client_id", clientID)
		metrics.ConnectionsTotal.WithLabelValues("rejected_duplicate").Inc()
		return nil, errs.DuplicateClientError(clientID)
	}

	if len(r.sessions) >= r.max {
		slog.Warn("Rejecting client: connection limit reached", "client_id", clientID, "max_connections", r.max)
		metrics.ConnectionsTotal.WithLabelValues("rejected_capacity").Inc()
		return nil, errs.CapacityExceededError(r.max)
	}

	session := newSession(clientID, conn, r.clock.Now())
	r.sessions[clientID] = session
	r.totalConnections.Add(1)

	metrics.ConnectionsCurrent.Set(float64(len(r.sessions)))
	metrics.ConnectionsTotal.WithLabelValues("accepted").Inc()

	slog.Info("Client connected",
		"client_id", clientID,
		"active_connections", len(r.sessions),
		"total_connections", r.totalConnections.Load(),
	)
	return session, nil
}

// generateClientID returns a fresh id of the form client_xxxxxxxx.
// Must be called with mu held.
func (r *Registry) generateClientID() string {
	for {
		id := uuid.New()
		clientID := "client_" + hex.EncodeToString(id[:4])
		if _, exists := r.sessions[clientID]; !exists {
			return clientID
		}
	}
}

// Remove evicts a session and marks it closed. Idempotent: removing an
// absent id returns false. The transport handle is closed after eviction,
// outside the lock; an in-flight broadcast holding a snapshot may still
// attempt one delivery to the closed handle, which is tolerated.
func (r *Registry) Remove(clientID string) bool {
	r.mu.Lock()
	session, exists := r.sessions[clientID]
	if !exists {
		r.mu.Unlock()
		slog.Debug("Attempted to remove unknown client", "client_id", clientID)
		return false
	}
	delete(r.sessions, clientID)
	remaining := len(r.sessions)
	r.mu.Unlock()

	session.setState(StateClosed)
	session.close(1000, "")

	duration := r.clock.Since(session.ConnectedAt())
	metrics.ConnectionsCurrent.Set(float64(remaining))
	metrics.ConnectionDuration.Observe(duration.Seconds())

	slog.Info("Client disconnected",
		"client_id", clientID,
		"active_connections", remaining,
		"connection_duration", duration,
	)
	return true
}

// Snapshot returns a consistent point-in-time copy of the current members,
// for iteration without holding the registry during I/O.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		snapshot = append(snapshot, session)
	}
	return snapshot
}

// Count returns the number of currently open sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Contains reports whether a session with the given id is open.
func (r *Registry) Contains(clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sessions[clientID]
	return exists
}

// TotalConnections returns the monotonic count of successful admissions.
func (r *Registry) TotalConnections() int64 {
	return r.totalConnections.Load()
}

// Touch updates the session's last-seen timestamp on inbound activity.
func (r *Registry) Touch(clientID string) bool {
	r.mu.RLock()
	session, exists := r.sessions[clientID]
	r.mu.RUnlock()
	if !exists {
		return false
	}
	session.touch(r.clock.Now())
	return true
}

// CloseAdmissions makes all subsequent Admit calls fail with an
// unavailable error. Called once by the shutdown coordinator at drain start.
func (r *Registry) CloseAdmissions() {
	r.mu.Lock()
	r.accepting = false
	r.mu.Unlock()
	slog.Info("Registry admissions closed")
}

// Accepting reports whether new sessions are still admitted.
func (r *Registry) Accepting() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.accepting
}

// ForceCloseAll terminates every remaining session's transport with the
// given close code and empties the registry. Returns the number of
// sessions closed. Used by the shutdown coordinator at drain timeout.
func (r *Registry) ForceCloseAll(code int, reason string) int {
	r.mu.Lock()
	remaining := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		session.setState(StateClosing)
		remaining = append(remaining, session)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, session := range remaining {
		session.close(code, reason)
		session.setState(StateClosed)
	}

	metrics.ConnectionsCurrent.Set(0)
	if len(remaining) > 0 {
		slog.Warn("Force-closed remaining sessions", "count", len(remaining), "close_code", code)
	}
	return len(remaining)
}
