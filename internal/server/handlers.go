package server

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/notifyd/notifyd/internal/domain"
	errs "github.com/notifyd/notifyd/internal/errors"
)

const capacityWarningRatio = 0.9

func (s *Server) handleHealth(c echo.Context) error {
	now := s.clock.Now().UTC()

	if s.coordinator.Draining() {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":        "shutting_down",
			"message":       "Server is shutting down",
			"timestamp":     now.Format(timeLayout),
			"shutdown_info": s.coordinator.Info(),
		})
	}

	snapshot := s.aggregator.Snapshot()

	healthStatus := "healthy"
	if float64(snapshot.ActiveConnections) >= float64(s.config.MaxConnections)*capacityWarningRatio {
		healthStatus = "warning"
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":    healthStatus,
		"message":   "WebSocket Notification Server is running",
		"timestamp": now.Format(timeLayout),
		"connections": map[string]any{
			"active":      snapshot.ActiveConnections,
			"total":       snapshot.TotalConnections,
			"max_allowed": s.config.MaxConnections,
		},
		"server_info": map[string]any{
			"notification_interval": snapshot.NotificationInterval,
		},
	})
}

func (s *Server) handleNotify(c echo.Context) error {
	var req notifyRequest
	if err := c.Bind(&req); err != nil {
		return errs.ValidationError("invalid request body")
	}
	if req.Message == "" {
		return errs.ValidationError("message is required")
	}
	if req.Type == "" {
		req.Type = "custom"
	}

	data := map[string]any{"message": req.Message}
	for k, v := range req.Data {
		data[k] = v
	}

	notification := domain.NewNotification(req.Type, domain.SenderNotificationService, data, s.clock.Now())

	recipients, err := s.scheduler.SendNow(notification)
	if err != nil {
		return err
	}

	slog.Info("Manual notification sent", "type", req.Type, "recipients", recipients)

	return c.JSON(http.StatusOK, map[string]any{
		"status":     "success",
		"message":    "Notification sent successfully",
		"recipients": recipients,
		"notification": map[string]any{
			"id":      notification.ID,
			"type":    notification.Type,
			"message": req.Message,
		},
		"timestamp": s.clock.Now().UTC().Format(timeLayout),
	})
}

func (s *Server) handleMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.aggregator.Snapshot())
}

func (s *Server) handleStatus(c echo.Context) error {
	snapshot := s.aggregator.Snapshot()
	sessions := s.registry.Snapshot()

	details := make([]map[string]any, 0, len(sessions))
	for _, sess := range sessions {
		details = append(details, map[string]any{
			"client_id":    sess.ClientID(),
			"connected_at": sess.ConnectedAt().UTC().Format(timeLayout),
			"last_seen":    sess.LastSeen().UTC().Format(timeLayout),
			"state":        sess.State().String(),
		})
	}

	serverStatus := "running"
	if s.coordinator.Draining() {
		serverStatus = "shutting_down"
	}

	return c.JSON(http.StatusOK, map[string]any{
		"server": map[string]any{
			"status":         serverStatus,
			"uptime_seconds": snapshot.UptimeSeconds,
			"start_time":     snapshot.StartTime.Format(timeLayout),
			"current_time":   s.clock.Now().UTC().Format(timeLayout),
		},
		"connections": map[string]any{
			"active":      snapshot.ActiveConnections,
			"total":       snapshot.TotalConnections,
			"max_allowed": s.config.MaxConnections,
			"details":     details,
		},
		"notification_service": map[string]any{
			"is_running":            snapshot.SchedulerRunning,
			"notifications_sent":    snapshot.NotificationsSent,
			"notification_interval": snapshot.NotificationInterval,
		},
		"shutdown": s.coordinator.Info(),
	})
}
