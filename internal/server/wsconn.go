package server

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/notifyd/notifyd/internal/metrics"
)

const (
	writeDeadline = 5 * time.Second
	pongDeadline  = 60 * time.Second
)

var (
	errConnClosed     = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

// wsConn binds a gorilla WebSocket connection to the domain.Conn capability.
// A single writer goroutine owns the connection's write side: queued
// messages and server pings never interleave, and a session's deliveries
// keep their enqueue order.
type wsConn struct {
	conn         *websocket.Conn
	clock        clockwork.Clock
	pingInterval time.Duration

	sendCh   chan []byte
	doneCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newWSConn(conn *websocket.Conn, clock clockwork.Clock, bufferSize int, pingInterval time.Duration) *wsConn {
	c := &wsConn{
		conn:         conn,
		clock:        clock,
		pingInterval: pingInterval,
		sendCh:       make(chan []byte, bufferSize),
		doneCh:       make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run()
	return c
}

func (c *wsConn) run() {
	defer c.wg.Done()

	ticker := c.clock.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.sendCh:
			c.updateWriteDeadline()
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.Chan():
			c.updateWriteDeadline()
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.doneCh:
			return
		}
	}
}

// Send queues one message for the writer goroutine. It fails fast when the
// connection is closed or the peer is too slow to drain its buffer; the
// caller treats either as a delivery failure.
func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.doneCh:
		return errConnClosed
	default:
	}

	select {
	case c.sendCh <- data:
		return nil
	case <-c.doneCh:
		return errConnClosed
	default:
		return errSendBufferFull
	}
}

// Close stops the writer, sends a close frame with the given code and
// reason, and tears down the transport. Safe to call more than once.
func (c *wsConn) Close(code int, reason string) error {
	c.stopOnce.Do(func() {
		// Stop the writer goroutine first so the close frame below is the
		// only remaining writer on the connection.
		close(c.doneCh)
		c.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(code, reason)
		c.updateWriteDeadline()
		_ = c.conn.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = c.conn.Close()
	})
	return nil
}

// configurePongHandler refreshes the read deadline on every pong and
// reports peer liveness through onActivity.
func (c *wsConn) configurePongHandler(onActivity func()) {
	c.updateReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.updateReadDeadline()
		metrics.ClientMessagesTotal.WithLabelValues("pong").Inc()
		onActivity()
		return nil
	})
}

func (c *wsConn) updateWriteDeadline() {
	_ = c.conn.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
}

func (c *wsConn) updateReadDeadline() {
	_ = c.conn.SetReadDeadline(c.clock.Now().Add(pongDeadline))
}
