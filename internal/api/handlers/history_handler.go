package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/logsmith/backend/internal/pipeline"
	"github.com/logsmith/backend/pkg/logger"
)

type HistoryHandler struct {
	history pipeline.HistoryStore
}

func NewHistoryHandler(history pipeline.HistoryStore) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// GetHistory lists run records, optionally filtered to one group and to
// the latest record per group.
func (h *HistoryHandler) GetHistory(c *fiber.Ctx) error {
	group := c.Query("group")
	latestOnly := c.QueryBool("latest")

	records, err := h.history.ListRunRecords(c.Context(), group, latestOnly)
	if err != nil {
		logger.Error("Failed to list run records", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list run history",
		})
	}

	return c.JSON(fiber.Map{
		"records": records,
	})
}
