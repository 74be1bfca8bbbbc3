package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/AndresVelasco/Inventia/internal/pkg/billing"
)

// RequireQuota rejects a creation request once the tenant's plan quota for the
// resource is exhausted. Runs behind TenantContext.
func RequireQuota(svc *billing.Service, resource billing.Resource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenant := TenantFromCtx(c)
		if tenant == nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "internal_server_error",
				"message": "tenant context missing",
			})
		}

		err := svc.CheckLimit(c.UserContext(), tenant.ID, resource)
		if err == nil {
			return c.Next()
		}

		var limitErr *billing.LimitReachedError
		if errors.As(err, &limitErr) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":    "limit_reached",
				"message":  limitErr.Error(),
				"resource": string(limitErr.Resource),
				"current":  limitErr.Current,
				"limit":    limitErr.Limit,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "internal_server_error",
			"message": "quota check failed",
		})
	}
}
