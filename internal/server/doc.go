// Package server implements the HTTP and WebSocket surface using Echo.
//
// Routes: /ws (client sessions), /notify (ad-hoc broadcast), /health,
// /status, /metrics (JSON snapshot), /metrics/prometheus (exposition).
// The WebSocket binding implements domain.Conn: a per-connection writer
// goroutine serializes all outbound frames for a session.
package server
