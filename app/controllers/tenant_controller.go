package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/AndresVelasco/Inventia/app/models"
	"github.com/AndresVelasco/Inventia/app/repository"
	"github.com/AndresVelasco/Inventia/internal/pkg/plans"
)

type registerTenantRequest struct {
	Name          string `json:"name"`
	NIT           string `json:"nit"`
	BillingEmail  string `json:"billing_email"`
	AdminName     string `json:"admin_name"`
	AdminEmail    string `json:"admin_email"`
	AdminPassword string `json:"admin_password"`
}

// HandleRegisterTenant creates a tenant on the free tier together with its
// first admin user. Paid plans come later through checkout.
func HandleRegisterTenant(c *fiber.Ctx) error {
	var req registerTenantRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	tenant := &models.Tenant{
		Name:         req.Name,
		NIT:          req.NIT,
		BillingEmail: req.BillingEmail,
		Status:       models.TenantStatusActive,
	}
	tenant.ApplyPlanLimits(plans.PlanEmprendedor)
	if err := tenant.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	store := repository.GetStore()
	err := store.Atomic(func(s repository.Store) error {
		if err := s.Tenants().Create(tenant); err != nil {
			return err
		}
		admin, err := models.CreateUser(tenant.ID, req.AdminName, req.AdminEmail, req.AdminPassword, models.RoleAdmin)
		if err != nil {
			return err
		}
		return s.Users().Create(admin)
	})
	if err != nil {
		return badRequest(c, err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(tenant)
}
