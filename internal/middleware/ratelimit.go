package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Sign-in, sign-up and reset endpoints (per IP)
	AuthMax        int
	AuthExpiration time.Duration

	// Generation calls (per user), each one is a paid model request
	GenerationMax        int
	GenerationExpiration time.Duration

	// WebSocket connection attempts (per IP)
	WebSocketMax        int
	WebSocketExpiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		GlobalAPIMax:        200,
		GlobalAPIExpiration: 1 * time.Minute,

		AuthMax:        20,
		AuthExpiration: 1 * time.Minute,

		GenerationMax:        20,
		GenerationExpiration: 1 * time.Minute,

		WebSocketMax:        20,
		WebSocketExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	overrides := map[string]*int{
		"RATE_LIMIT_GLOBAL_API": &config.GlobalAPIMax,
		"RATE_LIMIT_AUTH":       &config.AuthMax,
		"RATE_LIMIT_GENERATION": &config.GenerationMax,
		"RATE_LIMIT_WEBSOCKET":  &config.WebSocketMax,
	}
	for key, target := range overrides {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*target = n
			}
		}
	}

	// Development mode: more lenient limits
	if os.Getenv("ENVIRONMENT") == "development" {
		config.GlobalAPIMax = 1000
		config.WebSocketMax = 100
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

func tooMany(message string, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":       message,
			"retry_after": int(window.Seconds()),
		})
	}
}

// GlobalAPIRateLimiter creates a rate limiter for all API requests
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GlobalAPIMax,
		Expiration: config.GlobalAPIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Global limit reached for IP: %s", c.IP())
			return tooMany("Too many requests. Please slow down.", config.GlobalAPIExpiration)(c)
		},
	})
}

// AuthRateLimiter limits credential endpoints per IP
func AuthRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.AuthMax,
		Expiration: config.AuthExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "auth:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Auth endpoint limit reached for IP: %s on %s", c.IP(), c.Path())
			return tooMany("Too many requests. Please wait before trying again.", config.AuthExpiration)(c)
		},
	})
}

// GenerationRateLimiter limits generation calls per signed-in user
func GenerationRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GenerationMax,
		Expiration: config.GenerationExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			if s := SessionFrom(c); s.Authenticated() {
				return "generate:" + s.UserID
			}
			return "generate-ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			userID, _ := c.Locals("user_id").(string)
			log.Printf("⚠️  [RATE-LIMIT] Generation limit reached for user: %s", userID)
			return tooMany("Generation rate limit reached. Please wait before trying again.", config.GenerationExpiration)(c)
		},
	})
}

// WebSocketRateLimiter for WebSocket connection attempts
func WebSocketRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.WebSocketMax,
		Expiration: config.WebSocketExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "ws:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] WebSocket connection limit reached for IP: %s", c.IP())
			return tooMany("Too many connection attempts. Please wait before reconnecting.", config.WebSocketExpiration)(c)
		},
	})
}
