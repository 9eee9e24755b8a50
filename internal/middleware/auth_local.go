package middleware

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"

	"studyforge/internal/models"
	"studyforge/pkg/auth"
)

// sessionKey is the fiber local holding the caller's *models.Session
const sessionKey = "session"

// SessionFrom returns the session the auth middleware attached, or nil for
// an anonymous caller
func SessionFrom(c *fiber.Ctx) *models.Session {
	s, _ := c.Locals(sessionKey).(*models.Session)
	return s
}

func setUser(c *fiber.Ctx, user *auth.User) {
	c.Locals("user_id", user.ID)
	c.Locals("user_email", user.Email)
	c.Locals("user_role", user.Role)
	c.Locals(sessionKey, &models.Session{
		UserID:        user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		IsAdmin:       user.Role == models.RoleAdmin,
	})
}

// devUser stands in for a real account when JWT is not configured outside production
var devUser = &auth.User{ID: "dev-user", Email: "dev@localhost", Role: models.RoleUser, EmailVerified: true}

// requestToken reads the bearer token from the Authorization header, or
// from ?token= for WebSocket upgrades
func requestToken(c *fiber.Ctx) string {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		if token, err := auth.ExtractToken(authHeader); err == nil {
			return token
		}
	}
	return c.Query("token")
}

// LocalAuthMiddleware verifies local JWT tokens and rejects anonymous callers
func LocalAuthMiddleware(jwtAuth *auth.LocalJWTAuth) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if jwtAuth == nil {
			environment := os.Getenv("ENVIRONMENT")
			// Never allow auth bypass in production
			if environment == "production" {
				log.Fatal("❌ CRITICAL SECURITY ERROR: JWT auth not configured in production environment. Authentication is required.")
			}
			if environment != "development" && environment != "testing" && environment != "" {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "Authentication service unavailable",
				})
			}

			setUser(c, devUser)
			return c.Next()
		}

		token := requestToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":    "Missing or invalid authorization token",
				"redirect": "/login",
			})
		}

		user, err := jwtAuth.VerifyAccessToken(token)
		if err != nil {
			log.Printf("❌ Auth failed: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":    "Invalid or expired token",
				"redirect": "/login",
			})
		}

		setUser(c, user)
		return c.Next()
	}
}

// OptionalLocalAuthMiddleware attaches a session when a valid token is
// present and otherwise lets the request through as anonymous
func OptionalLocalAuthMiddleware(jwtAuth *auth.LocalJWTAuth) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := requestToken(c)
		if token == "" {
			return c.Next()
		}

		if jwtAuth == nil {
			environment := os.Getenv("ENVIRONMENT")
			if environment == "production" {
				log.Fatal("❌ CRITICAL SECURITY ERROR: JWT auth not configured in production environment")
			}
			if environment == "development" || environment == "testing" || environment == "" {
				setUser(c, devUser)
			}
			return c.Next()
		}

		user, err := jwtAuth.VerifyAccessToken(token)
		if err != nil {
			log.Printf("⚠️  Token validation failed: %v (continuing as anonymous)", err)
			return c.Next()
		}

		setUser(c, user)
		return c.Next()
	}
}
