package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"studyforge/internal/logging"
	"studyforge/internal/middleware"
	"studyforge/internal/services"
)

// HistoryHandler serves a member's saved generations
type HistoryHandler struct {
	history *services.HistoryService
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(history *services.HistoryService) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// List returns the caller's records for one feature, newest first
// GET /api/history/:featureId
func (h *HistoryHandler) List(c *fiber.Ctx) error {
	records, err := h.history.List(c.UserContext(), middleware.SessionFrom(c), c.Params("featureId"))
	if errors.Is(err, services.ErrUnknownFeature) {
		return featureNotFound(c)
	}
	if err != nil {
		logging.WithRequest(c).Error("failed to list history", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}
	return c.JSON(fiber.Map{
		"history": records,
	})
}

// Delete removes one of the caller's records. Deleting a missing record succeeds.
// DELETE /api/history/:featureId/:id
func (h *HistoryHandler) Delete(c *fiber.Ctx) error {
	err := h.history.Delete(c.UserContext(), middleware.SessionFrom(c), c.Params("featureId"), c.Params("id"))
	if errors.Is(err, services.ErrUnknownFeature) {
		return featureNotFound(c)
	}
	if err != nil {
		logging.WithRequest(c).Error("failed to delete history", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete history entry",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
