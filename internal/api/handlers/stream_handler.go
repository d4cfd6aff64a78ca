package handlers

import (
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/recoverlink/backend/internal/notify"
	"github.com/recoverlink/backend/pkg/logger"
)

// StreamHandler pushes newly produced assessments to connected
// clinician dashboards over a websocket.
type StreamHandler struct {
	hub *notify.Hub
}

func NewStreamHandler(hub *notify.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

func (h *StreamHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("Assessment stream connection established")

	events, cancel := h.hub.Subscribe()

	done := make(chan struct{})

	// Reads only serve to detect the client going away.
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		cancel()
		c.Close()
		logger.Info("Assessment stream connection closed")
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := c.WriteJSON(streamMessage(event)); err != nil {
				logger.Warn("Failed to write stream event", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}

func streamMessage(event notify.AssessmentEvent) map[string]interface{} {
	return map[string]interface{}{
		"type":       "assessment",
		"assessment": event,
	}
}
