package middleware

import (
	"github.com/gofiber/fiber/v2"

	"studyforge/internal/access"
)

func guard(kind access.Kind, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		level := access.Classify(SessionFrom(c))
		decision := access.Admit(level, access.Route{Path: c.Path(), Kind: kind})
		if decision.Allowed {
			return c.Next()
		}

		status := fiber.StatusForbidden
		errMsg := message
		if level == access.Anonymous {
			status = fiber.StatusUnauthorized
			errMsg = "Authentication required"
		}
		if decision.Message != "" {
			errMsg = decision.Message
		}
		return c.Status(status).JSON(fiber.Map{
			"error":    errMsg,
			"redirect": decision.RedirectTo,
			"message":  decision.Message,
		})
	}
}

// RequireMember admits verified accounts and admins. Mount it after one of
// the auth middlewares.
func RequireMember() fiber.Handler {
	return guard(access.KindMember, "Email verification required")
}

// RequireAdmin admits accounts carrying the admin role
func RequireAdmin() fiber.Handler {
	return guard(access.KindAdmin, "Admin access required")
}
