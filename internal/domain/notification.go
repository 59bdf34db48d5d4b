package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message type tags. Server-to-client frames use these plus whatever
// arbitrary tag an ad-hoc /notify caller supplies.
const (
	TypeWelcome          = "welcome"
	TypeTestNotification = "test_notification"
	TypeSystem           = "system"
	TypeShutdown         = "shutdown"
	TypePing             = "ping"
	TypePong             = "pong"
	TypeStatusRequest    = "status_request"
	TypeStatusResponse   = "status_response"
	TypeError            = "error"
)

// Sender tags identifying a notification's origin.
const (
	SenderNotificationService = "notification_service"
	SenderSystem              = "system"
)

// Notification is one message fanned out to all open sessions.
// Immutable once constructed; never modified after handoff to the engine.
type Notification struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Sender    string         `json:"sender"`
}

// NewNotification builds a notification with a fresh unique id.
// now is injected so callers can use their clock.
func NewNotification(msgType, sender string, data map[string]any, now time.Time) Notification {
	if data == nil {
		data = map[string]any{}
	}
	return Notification{
		ID:        uuid.NewString(),
		Type:      msgType,
		Timestamp: now.UTC(),
		Data:      data,
		Sender:    sender,
	}
}
