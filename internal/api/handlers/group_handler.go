package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	cache "github.com/logsmith/backend/internal/cache/redis"
	"github.com/logsmith/backend/internal/storage/sqlite"
	"github.com/logsmith/backend/pkg/logger"
)

type GroupHandler struct {
	store *sqlite.Client
	cache *cache.Client
}

func NewGroupHandler(store *sqlite.Client, cache *cache.Client) *GroupHandler {
	return &GroupHandler{store: store, cache: cache}
}

func (h *GroupHandler) ListGroups(c *fiber.Ctx) error {
	groups, err := h.store.Groups(c.Context())
	if err != nil {
		logger.Error("Failed to list groups", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list groups",
		})
	}

	return c.JSON(fiber.Map{
		"groups": groups,
	})
}

// UploadDocuments appends raw documents to a group. Each document is an
// arbitrary flat field map; the configured source field carries the log
// text.
func (h *GroupHandler) UploadDocuments(c *fiber.Ctx) error {
	group := c.Params("group")
	if group == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Group is required",
		})
	}

	var req struct {
		Documents []map[string]string `json:"documents"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if len(req.Documents) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Documents are required",
		})
	}

	firstSeq, err := h.store.PutRawDocuments(c.Context(), group, req.Documents)
	if err != nil {
		logger.Error("Failed to store documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store documents",
		})
	}

	// New documents change what a sample would contain; cached oracle
	// candidates for the group are stale.
	if h.cache != nil {
		if err := h.cache.InvalidateGroup(c.Context(), group); err != nil {
			logger.Warn("Failed to invalidate pattern cache", zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{
		"group":     group,
		"first_seq": firstSeq,
		"count":     len(req.Documents),
	})
}
