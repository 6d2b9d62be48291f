package handlers

import (
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/logsmith/backend/internal/pipeline"
	"github.com/logsmith/backend/pkg/logger"
)

type ProgressHandler struct {
	hub *pipeline.ProgressHub
}

func NewProgressHandler(hub *pipeline.ProgressHub) *ProgressHandler {
	return &ProgressHandler{hub: hub}
}

// HandleConnection streams pipeline progress events to the client,
// optionally filtered to one group via the "group" query parameter, until
// the client disconnects.
func (h *ProgressHandler) HandleConnection(c *websocket.Conn) {
	group := c.Query("group")

	logger.Info("Progress stream opened", zap.String("group", group))

	defer func() {
		c.Close()
		logger.Info("Progress stream closed")
	}()

	events, cancel := h.hub.Subscribe()
	defer cancel()

	// Drain the read side so client close is noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if group != "" && ev.Group != group {
				continue
			}
			if err := c.WriteJSON(ev); err != nil {
				logger.Debug("Failed to write progress event", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}
