package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNotification(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	n := NewNotification(TypeTestNotification, SenderNotificationService, map[string]any{"counter": 1}, now)

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, TypeTestNotification, n.Type)
	assert.Equal(t, SenderNotificationService, n.Sender)
	assert.Equal(t, now.UTC(), n.Timestamp)
	assert.Equal(t, 1, n.Data["counter"])

	other := NewNotification(TypeTestNotification, SenderNotificationService, nil, now)
	assert.NotEqual(t, n.ID, other.ID)
	assert.NotNil(t, other.Data, "nil data normalizes to an empty map")
}

func TestNotificationWireShape(t *testing.T) {
	now := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	n := NewNotification(TypeShutdown, SenderSystem, map[string]any{"message": "bye"}, now)

	raw, err := json.Marshal(n)
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, n.ID, frame["id"])
	assert.Equal(t, "shutdown", frame["type"])
	assert.Equal(t, "system", frame["sender"])
	assert.Equal(t, "2025-03-01T11:00:00Z", frame["timestamp"])
	assert.Equal(t, map[string]any{"message": "bye"}, frame["data"])
}
