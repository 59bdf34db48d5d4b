package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/notifyd/notifyd/internal/domain"
	errs "github.com/notifyd/notifyd/internal/errors"
	"github.com/notifyd/notifyd/internal/metrics"
	"github.com/notifyd/notifyd/internal/registry"
)

// Client-visible error codes carried in error frames.
const (
	errCodeInvalidJSON = 400
	errCodeUnknownType = 400
)

func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()
	if !s.rateLimiter.Allow(ip) {
		metrics.RateLimitedTotal.Inc()
		slog.Warn("Connection rate limited", "ip", ip)
		return c.String(http.StatusTooManyRequests, "connection rate limit exceeded")
	}

	clientID := c.QueryParam("client_id")

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "ip", ip, "error", err)
		return nil
	}

	wsc := newWSConn(conn, s.clock, s.config.SendBufferSize, s.config.PingInterval)

	session, err := s.registry.Admit(clientID, wsc)
	if err != nil {
		structured := errs.AsStructuredError(err)
		_ = wsc.Close(structured.CloseCode(), structured.Message)
		return nil
	}
	clientID = session.ClientID()

	wsc.configurePongHandler(func() {
		s.registry.Touch(clientID)
	})

	if err := s.sendWelcome(session); err != nil {
		slog.Warn("Failed to send welcome message", "client_id", clientID, "error", err)
		s.registry.Remove(clientID)
		return nil
	}

	s.readPump(session, conn)

	// Covers unsolicited disconnects; no-op if a failed delivery or the
	// shutdown coordinator already removed the session.
	s.registry.Remove(clientID)
	return nil
}

func (s *Server) sendWelcome(session *registry.Session) error {
	frame := newWelcomeFrame(session.ClientID(), s.clock.Now(), s.config.NotificationInterval)
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return session.Send(data)
}

// readPump blocks on inbound frames until the peer disconnects or the read
// deadline (refreshed by pongs and messages) expires.
func (s *Server) readPump(session *registry.Session, conn connReader) {
	clientID := session.ClientID()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			slog.Debug("Read loop ended", "client_id", clientID, "error", err)
			return
		}
		s.registry.Touch(clientID)
		s.handleClientMessage(session, payload)
	}
}

// connReader is the read side of a gorilla connection, narrowed for tests.
type connReader interface {
	ReadMessage() (int, []byte, error)
}

// handleClientMessage processes one inbound client frame. Malformed or
// unknown messages get an error frame back; the connection stays open.
func (s *Server) handleClientMessage(session *registry.Session, payload []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		metrics.ClientMessagesTotal.WithLabelValues("invalid").Inc()
		s.sendErrorFrame(session, "Invalid JSON format", errCodeInvalidJSON)
		return
	}

	switch msg.Type {
	case domain.TypePing:
		metrics.ClientMessagesTotal.WithLabelValues("ping").Inc()
		s.sendFrame(session, newPongFrame(s.clock.Now()))

	case domain.TypePong:
		// Activity already recorded by the read pump.
		metrics.ClientMessagesTotal.WithLabelValues("pong").Inc()

	case domain.TypeStatusRequest:
		metrics.ClientMessagesTotal.WithLabelValues("status_request").Inc()
		now := s.clock.Now().UTC()
		s.sendFrame(session, statusResponseFrame{
			Type: domain.TypeStatusResponse,
			Data: statusData{
				ActiveConnections: s.registry.Count(),
				TotalConnections:  s.registry.TotalConnections(),
				ServerTime:        now.Format(timeLayout),
			},
			Timestamp: now.Format(timeLayout),
		})

	default:
		metrics.ClientMessagesTotal.WithLabelValues("invalid").Inc()
		s.sendErrorFrame(session, fmt.Sprintf("Unknown message type: %s", msg.Type), errCodeUnknownType)
	}
}

func (s *Server) sendErrorFrame(session *registry.Session, message string, code int) {
	s.sendFrame(session, newErrorFrame(message, code, s.clock.Now()))
}

func (s *Server) sendFrame(session *registry.Session, frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Failed to marshal frame", "client_id", session.ClientID(), "error", err)
		return
	}
	if err := session.Send(data); err != nil {
		slog.Debug("Failed to send frame", "client_id", session.ClientID(), "error", err)
	}
}
