package domain

// Conn is the transport capability a session exposes to the core.
// The concrete binding (WebSocket today) lives in the server package,
// keeping the registry and engine transport-agnostic.
//
// Send must serialize writes per connection: two Send calls on the same
// Conn never interleave on the wire, and delivery order matches call order.
type Conn interface {
	// Send pushes one serialized message to the peer. It fails fast
	// (closed transport, full send buffer) instead of blocking.
	Send(data []byte) error

	// Close terminates the transport with a close code and reason.
	// Safe to call more than once.
	Close(code int, reason string) error
}
