package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var groupNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

type Config struct {
	MaxPatternLength int
	MaxUploadDocs    int
	Logger           *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxPatternLength == 0 {
		cfg.MaxPatternLength = 2000
	}
	if cfg.MaxUploadDocs == 0 {
		cfg.MaxUploadDocs = 10000
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()

		if c.Method() == "POST" && strings.HasSuffix(path, "/runs") {
			var req struct {
				Groups  []string `json:"groups"`
				Pattern string   `json:"pattern"`
			}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			for _, group := range req.Groups {
				if !groupNamePattern.MatchString(group) {
					cfg.Logger.Warn("Rejected malformed group name",
						zap.String("ip", c.IP()),
						zap.String("group", group),
					)
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
						"error": "Invalid group name",
					})
				}
			}

			if len(req.Pattern) > cfg.MaxPatternLength {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Pattern exceeds maximum length",
				})
			}
		}

		if c.Method() == "POST" && strings.Contains(path, "/documents") {
			var req struct {
				Documents []map[string]string `json:"documents"`
			}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			if len(req.Documents) > cfg.MaxUploadDocs {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Too many documents in one upload",
				})
			}
		}

		if group := c.Params("group"); group != "" && !groupNamePattern.MatchString(group) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid group name",
			})
		}

		return c.Next()
	}
}
