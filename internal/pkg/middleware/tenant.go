package middleware

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/AndresVelasco/Inventia/app/models"
	"github.com/AndresVelasco/Inventia/app/repository"
)

const tenantLocalsKey = "TENANT"

// TenantContext resolves the :tenantID route parameter and stores the tenant
// on the request. Handlers behind it can assume the tenant exists.
func TenantContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("tenantID"), 10, 32)
		if err != nil || id == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "bad_request",
				"message": "invalid tenant id",
			})
		}

		tenant, err := repository.GetStore().Tenants().GetByID(uint(id))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error":   "not_found",
					"message": "tenant not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "internal_server_error",
				"message": "tenant lookup failed",
			})
		}

		c.Locals(tenantLocalsKey, tenant)
		return c.Next()
	}
}

// TenantFromCtx returns the tenant resolved by TenantContext, or nil when the
// route is not behind it.
func TenantFromCtx(c *fiber.Ctx) *models.Tenant {
	tenant, _ := c.Locals(tenantLocalsKey).(*models.Tenant)
	return tenant
}

// RequireActiveTenant blocks resource mutations for suspended tenants. Billing
// endpoints stay reachable so a suspended tenant can still pay its way back.
func RequireActiveTenant() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenant := TenantFromCtx(c)
		if tenant == nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "internal_server_error",
				"message": "tenant context missing",
			})
		}
		if tenant.Status != models.TenantStatusActive {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error":   "tenant_suspended",
				"message": "the account is suspended; renew the subscription to restore access",
			})
		}
		return c.Next()
	}
}
