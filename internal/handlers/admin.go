package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"studyforge/internal/logging"
	"studyforge/internal/services"
)

// AdminHandler serves the admin panel API
type AdminHandler struct {
	usage *services.UsageService
	site  *services.SiteService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(usage *services.UsageService, site *services.SiteService) *AdminHandler {
	return &AdminHandler{usage: usage, site: site}
}

// FlagRequest toggles one feature
type FlagRequest struct {
	IsEnabled *bool `json:"isEnabled"`
}

// BroadcastRequest replaces the site banner
type BroadcastRequest struct {
	Message  string `json:"message"`
	IsActive bool   `json:"isActive"`
}

func serverError(c *fiber.Ctx, msg string, err error) error {
	logging.WithRequest(c).Error(msg, "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": msg,
	})
}

// Stats returns total invocations and the number of tools ever used
// GET /api/admin/stats
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.usage.Stats(c.UserContext())
	if err != nil {
		return serverError(c, "Failed to load stats", err)
	}
	return c.JSON(stats)
}

// Usage returns every used tool, most used first
// GET /api/admin/usage
func (h *AdminHandler) Usage(c *fiber.Ctx) error {
	usage, err := h.usage.AllGlobal(c.UserContext())
	if err != nil {
		return serverError(c, "Failed to load usage", err)
	}
	return c.JSON(fiber.Map{
		"usage": usage,
	})
}

// ExportUsage downloads the usage table as a workbook.
// ?by_category=true adds one sheet per category.
// GET /api/admin/usage/export
func (h *AdminHandler) ExportUsage(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="studyforge-usage-%s.xlsx"`, time.Now().UTC().Format("2006-01-02")))

	if err := h.usage.ExportXLSX(c.UserContext(), c.Response().BodyWriter(), c.QueryBool("by_category")); err != nil {
		c.Response().ResetBody()
		c.Set(fiber.HeaderContentDisposition, "")
		return serverError(c, "Failed to export usage", err)
	}
	return nil
}

// Flags lists every feature with its effective flag
// GET /api/admin/flags
func (h *AdminHandler) Flags(c *fiber.Ctx) error {
	flags, err := h.site.FeatureFlags(c.UserContext())
	if err != nil {
		return serverError(c, "Failed to load feature flags", err)
	}
	return c.JSON(fiber.Map{
		"flags": flags,
	})
}

// SetFlag enables or disables a feature
// PUT /api/admin/flags/:featureId
func (h *AdminHandler) SetFlag(c *fiber.Ctx) error {
	var req FlagRequest
	if err := c.BodyParser(&req); err != nil || req.IsEnabled == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "isEnabled is required",
		})
	}

	featureID := c.Params("featureId")
	err := h.site.SetFlag(c.UserContext(), featureID, *req.IsEnabled)
	if errors.Is(err, services.ErrUnknownFeature) {
		return featureNotFound(c)
	}
	if err != nil {
		return serverError(c, "Failed to update feature flag", err)
	}

	logging.WithRequest(c).Info("feature flag updated", "feature_id", featureID, "enabled", *req.IsEnabled)
	return c.JSON(fiber.Map{
		"feature_id": featureID,
		"is_enabled": *req.IsEnabled,
	})
}

// Broadcast returns the stored banner, active or not
// GET /api/admin/broadcast
func (h *AdminHandler) Broadcast(c *fiber.Ctx) error {
	b, err := h.site.Broadcast(c.UserContext())
	if err != nil {
		return serverError(c, "Failed to load broadcast", err)
	}
	return c.JSON(fiber.Map{
		"broadcast": b,
	})
}

// SetBroadcast replaces the banner
// PUT /api/admin/broadcast
func (h *AdminHandler) SetBroadcast(c *fiber.Ctx) error {
	var req BroadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	if err := h.site.SetBroadcast(c.UserContext(), req.Message, req.IsActive); err != nil {
		return serverError(c, "Failed to update broadcast", err)
	}
	b, err := h.site.Broadcast(c.UserContext())
	if err != nil {
		return serverError(c, "Failed to load broadcast", err)
	}
	return c.JSON(fiber.Map{
		"broadcast": b,
	})
}
