package server

import (
	"time"

	"github.com/notifyd/notifyd/internal/domain"
)

// timeLayout is the wire format for timestamps in direct frames.
const timeLayout = time.RFC3339Nano

// Wire frames exchanged directly with a single client, outside the
// broadcast path. Field shapes are the wire contract.

type welcomeFrame struct {
	Type                 string  `json:"type"`
	Message              string  `json:"message"`
	ClientID             string  `json:"client_id"`
	ServerTime           string  `json:"server_time"`
	NotificationInterval float64 `json:"notification_interval"`
}

type pongFrame struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

type statusResponseFrame struct {
	Type      string     `json:"type"`
	Data      statusData `json:"data"`
	Timestamp string     `json:"timestamp"`
}

type statusData struct {
	ActiveConnections int    `json:"active_connections"`
	TotalConnections  int64  `json:"total_connections"`
	ServerTime        string `json:"server_time"`
}

type errorFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
	Timestamp string `json:"timestamp"`
}

// inboundMessage is the minimal shape parsed from client messages.
type inboundMessage struct {
	Type string `json:"type"`
}

// notifyRequest is the body of POST /notify.
type notifyRequest struct {
	Message string         `json:"message"`
	Type    string         `json:"type"`
	Data    map[string]any `json:"data"`
}

func newWelcomeFrame(clientID string, now time.Time, interval time.Duration) welcomeFrame {
	return welcomeFrame{
		Type:                 domain.TypeWelcome,
		Message:              "Connected to WebSocket Notification Server",
		ClientID:             clientID,
		ServerTime:           now.UTC().Format(timeLayout),
		NotificationInterval: interval.Seconds(),
	}
}

func newPongFrame(now time.Time) pongFrame {
	return pongFrame{
		Type:      domain.TypePong,
		Timestamp: now.UTC().Format(timeLayout),
	}
}

func newErrorFrame(message string, code int, now time.Time) errorFrame {
	return errorFrame{
		Type:      domain.TypeError,
		Message:   message,
		Code:      code,
		Timestamp: now.UTC().Format(timeLayout),
	}
}
