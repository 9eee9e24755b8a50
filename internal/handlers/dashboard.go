package handlers

import (
	"github.com/gofiber/fiber/v2"

	"studyforge/internal/middleware"
	"studyforge/internal/services"
)

// DashboardHandler serves the landing page data
type DashboardHandler struct {
	dashboard *services.DashboardService
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboard *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// Get composes the dashboard for the caller. Sections that fail to load are
// left out; the request itself does not fail.
// GET /api/dashboard
func (h *DashboardHandler) Get(c *fiber.Ctx) error {
	return c.JSON(h.dashboard.Compose(c.UserContext(), middleware.SessionFrom(c)))
}

// Affirmation returns the daily affirmation
// GET /api/affirmation
func (h *DashboardHandler) Affirmation(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"affirmation": h.dashboard.Affirmation(c.UserContext(), middleware.SessionFrom(c)),
	})
}
