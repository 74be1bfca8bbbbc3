package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/AndresVelasco/Inventia/internal/pkg/env"
)

// AdminAPIKeyMiddleware guards the operator endpoints (plan activation,
// suspension, scheduler triggers) with the shared key from ADMIN_API_KEY.
// An unset key disables the endpoints entirely instead of leaving them open.
func AdminAPIKeyMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		expected := strings.TrimSpace(env.GetEnv("ADMIN_API_KEY", ""))
		if expected == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   "admin_api_disabled",
				"message": "ADMIN_API_KEY is not configured",
			})
		}

		key := extractAPIKeyFromHeader(c)
		if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Invalid API key",
			})
		}
		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
