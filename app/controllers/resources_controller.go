package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/AndresVelasco/Inventia/app/models"
	"github.com/AndresVelasco/Inventia/app/repository"
	"github.com/AndresVelasco/Inventia/internal/pkg/billing"
	"github.com/AndresVelasco/Inventia/internal/pkg/middleware"
)

// The create endpoints exist to put the plan quotas to work: each one runs
// behind the quota guard and persists through the shared store.

type createProductRequest struct {
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	PriceInCents int64  `json:"price_in_cents"`
}

func HandleCreateProduct(c *fiber.Ctx) error {
	tenant := middleware.TenantFromCtx(c)

	var req createProductRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Name == "" {
		return badRequest(c, "name is required")
	}

	product := &models.Product{
		TenantID:     tenant.ID,
		SKU:          req.SKU,
		Name:         req.Name,
		PriceInCents: req.PriceInCents,
	}
	if err := repository.GetStore().Usage().CreateProduct(product); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "could not create product"})
	}
	return c.Status(fiber.StatusCreated).JSON(product)
}

type createWarehouseRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func HandleCreateWarehouse(c *fiber.Ctx) error {
	tenant := middleware.TenantFromCtx(c)

	var req createWarehouseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Name == "" {
		return badRequest(c, "name is required")
	}

	warehouse := &models.Warehouse{
		TenantID: tenant.ID,
		Name:     req.Name,
		Address:  req.Address,
	}
	if err := repository.GetStore().Usage().CreateWarehouse(warehouse); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "could not create warehouse"})
	}
	return c.Status(fiber.StatusCreated).JSON(warehouse)
}

type createInvoiceRequest struct {
	Number       string     `json:"number"`
	CustomerName string     `json:"customer_name"`
	TotalInCents int64      `json:"total_in_cents"`
	IssuedAt     *time.Time `json:"issued_at"`
}

func HandleCreateInvoice(c *fiber.Ctx) error {
	tenant := middleware.TenantFromCtx(c)

	var req createInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Number == "" {
		return badRequest(c, "number is required")
	}
	issuedAt := time.Now()
	if req.IssuedAt != nil {
		issuedAt = *req.IssuedAt
	}

	invoice := &models.Invoice{
		TenantID:     tenant.ID,
		Number:       req.Number,
		CustomerName: req.CustomerName,
		TotalInCents: req.TotalInCents,
		IssuedAt:     issuedAt,
	}
	if err := repository.GetStore().Usage().CreateInvoice(invoice); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "could not create invoice"})
	}
	return c.Status(fiber.StatusCreated).JSON(invoice)
}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// HandleCreateUser creates a tenant member. The seat quota depends on the
// requested role, so the check happens here instead of the route middleware.
func HandleCreateUser(c *fiber.Ctx) error {
	tenant := middleware.TenantFromCtx(c)

	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Role == "" {
		req.Role = models.RoleEmployee
	}

	resource := billing.ResourceUser
	if req.Role == models.RoleAccountant {
		resource = billing.ResourceAccountant
	}
	if err := billingService.CheckLimit(c.UserContext(), tenant.ID, resource); err != nil {
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
		return respondBillingError(c, err)
	}

	// Accountants also occupy a general seat.
	if resource == billing.ResourceAccountant {
		if err := billingService.CheckLimit(c.UserContext(), tenant.ID, billing.ResourceUser); err != nil {
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
			return respondBillingError(c, err)
		}
	}

	user, err := models.CreateUser(tenant.ID, req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := repository.GetStore().Users().Create(user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "could not create user"})
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}
