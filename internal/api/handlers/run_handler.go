package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/logsmith/backend/internal/pipeline"
	"github.com/logsmith/backend/pkg/logger"
)

type RunHandler struct {
	scheduler *pipeline.Scheduler
}

func NewRunHandler(scheduler *pipeline.Scheduler) *RunHandler {
	return &RunHandler{scheduler: scheduler}
}

// StartRun triggers the pipeline for the requested groups, or for every
// known group when none are named.
func (h *RunHandler) StartRun(c *fiber.Ctx) error {
	var req struct {
		Groups       []string `json:"groups"`
		Pattern      string   `json:"pattern"`
		KeepFailures *bool    `json:"keep_failures"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	outcomes, err := h.scheduler.RunAll(c.Context(), pipeline.RunRequest{
		Groups:       req.Groups,
		Pattern:      req.Pattern,
		KeepFailures: req.KeepFailures,
	})
	if err != nil {
		logger.Error("Failed to dispatch run", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to dispatch run",
		})
	}

	return c.JSON(fiber.Map{
		"outcomes": outcomes,
	})
}

// Replay re-runs one group with the pattern of a past run, selected by
// the run's timestamp.
func (h *RunHandler) Replay(c *fiber.Ctx) error {
	group := c.Params("group")
	if group == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Group is required",
		})
	}

	var req struct {
		Timestamp    string `json:"timestamp"`
		KeepFailures *bool  `json:"keep_failures"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ts, err := time.Parse(time.RFC3339Nano, req.Timestamp)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Timestamp must be RFC3339",
		})
	}

	outcome := h.scheduler.Replay(c.Context(), group, ts, req.KeepFailures)
	if outcome.Record == nil {
		return c.Status(fiber.StatusNotFound).JSON(outcome)
	}

	return c.JSON(outcome)
}
