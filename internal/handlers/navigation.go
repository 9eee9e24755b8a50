package handlers

import (
	"github.com/gofiber/fiber/v2"

	"studyforge/internal/access"
	"studyforge/internal/middleware"
)

// NavigationHandler answers the client router's admission questions
type NavigationHandler struct {
	table *access.Table
}

// NewNavigationHandler creates a new navigation handler
func NewNavigationHandler(table *access.Table) *NavigationHandler {
	return &NavigationHandler{table: table}
}

// Decide admits the caller to a client path
// GET /api/navigation?path=/connection-weaver
func (h *NavigationHandler) Decide(c *fiber.Ctx) error {
	session := middleware.SessionFrom(c)
	route, decision := h.table.Decide(session, c.Query("path", "/"))
	return c.JSON(fiber.Map{
		"route":    route,
		"level":    access.Classify(session).String(),
		"decision": decision,
	})
}

// Routes lists the navigation surface
// GET /api/navigation/routes
func (h *NavigationHandler) Routes(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"routes": h.table.Routes(),
	})
}
