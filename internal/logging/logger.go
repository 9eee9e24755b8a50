package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithFeature returns a logger scoped to one user's use of one feature.
// Used by the feature controller and its detached history/usage tasks.
func WithFeature(userID, featureID string) *slog.Logger {
	return slog.With(
		"user_id", userID,
		"feature_id", featureID,
	)
}

// WithRequest returns a logger carrying the request method, path and caller.
func WithRequest(c *fiber.Ctx) *slog.Logger {
	userID, _ := c.Locals("user_id").(string)
	return slog.With(
		"method", c.Method(),
		"path", c.Path(),
		"user_id", userID,
		"ip", c.IP(),
	)
}
