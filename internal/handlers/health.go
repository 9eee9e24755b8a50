package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"studyforge/internal/services"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// HealthHandler handles health check requests
type HealthHandler struct {
	controllers *services.ControllerSet
	checks      map[string]HealthCheck
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(controllers *services.ControllerSet, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{controllers: controllers, checks: checks}
}

// Handle responds with server health status. A failing check turns the
// response into 503.
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "healthy"
	checks := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	code := fiber.StatusOK
	if status != "healthy" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"in_flight": h.controllers.InFlight(),
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
