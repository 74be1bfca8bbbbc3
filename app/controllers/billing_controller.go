package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/AndresVelasco/Inventia/internal/pkg/billing"
	"github.com/AndresVelasco/Inventia/internal/pkg/middleware"
	"github.com/AndresVelasco/Inventia/internal/pkg/plans"
	"github.com/AndresVelasco/Inventia/internal/pkg/wompi"
)

var billingService *billing.Service

// SetBillingService injects the engine at startup.
func SetBillingService(svc *billing.Service) {
	billingService = svc
}

// HandleGetSubscriptionStatus returns the tenant's plan, limits and usage.
func HandleGetSubscriptionStatus(c *fiber.Ctx) error {
	tenant := middleware.TenantFromCtx(c)

	status, err := billingService.GetSubscriptionStatus(c.UserContext(), tenant.ID)
	if err != nil {
		return respondBillingError(c, err)
	}
	return c.JSON(status)
}

// HandleGetCheckoutConfig prepares the hosted checkout widget parameters for
// one plan purchase.
func HandleGetCheckoutConfig(c *fiber.Ctx) error {
	tenant := middleware.TenantFromCtx(c)

	plan, err := plans.ParsePlan(c.Query("plan"))
	if err != nil {
		return badRequest(c, "unknown plan")
	}
	period, err := plans.ParsePeriod(c.Query("period", "MONTHLY"))
	if err != nil {
		return badRequest(c, "unknown billing period")
	}

	cfg, err := billingService.GetCheckoutConfig(c.UserContext(), tenant.ID, plan, period)
	if err != nil {
		return respondBillingError(c, err)
	}
	return c.JSON(cfg)
}

type verifyPaymentRequest struct {
	TransactionID string `json:"transaction_id"`
	Plan          string `json:"plan"`
	Period        string `json:"period"`
}

// HandleVerifyPayment confirms a finished checkout against the gateway and
// applies the purchase.
func HandleVerifyPayment(c *fiber.Ctx) error {
	tenant := middleware.TenantFromCtx(c)

	var req verifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.TransactionID == "" {
		return badRequest(c, "transaction_id is required")
	}
	plan, err := plans.ParsePlan(req.Plan)
	if err != nil {
		return badRequest(c, "unknown plan")
	}
	period, err := plans.ParsePeriod(req.Period)
	if err != nil {
		return badRequest(c, "unknown billing period")
	}

	status, err := billingService.VerifyPayment(c.UserContext(), tenant.ID, req.TransactionID, plan, period)
	if err != nil {
		return respondBillingError(c, err)
	}
	return c.JSON(status)
}

type paymentSourceRequest struct {
	CardToken         string `json:"card_token"`
	AcceptanceToken   string `json:"acceptance_token"`
	PersonalAuthToken string `json:"personal_auth_token"`
}

// HandleCreatePaymentSource stores a tokenized card for recurring billing.
func HandleCreatePaymentSource(c *fiber.Ctx) error {
	tenant := middleware.TenantFromCtx(c)

	var req paymentSourceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.CardToken == "" || req.AcceptanceToken == "" {
		return badRequest(c, "card_token and acceptance_token are required")
	}

	sourceID, err := billingService.CreatePaymentSource(c.UserContext(), tenant.ID, req.CardToken, req.AcceptanceToken, req.PersonalAuthToken)
	if err != nil {
		return respondBillingError(c, err)
	}
	return c.JSON(fiber.Map{"payment_source_id": sourceID})
}

// HandleBillingWebhook receives gateway events. A bad signature answers 401 so
// the misconfiguration is visible; everything else answers 200 because the
// gateway retries non-2xx responses forever.
func HandleBillingWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	if err := billingService.HandleWebhook(c.UserContext(), rawBody); err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_failed"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

type adminPlanRequest struct {
	Plan   string `json:"plan"`
	Period string `json:"period"`
	Reason string `json:"reason"`
}

// HandleAdminActivatePlan applies a plan without a charge (support flows,
// sponsored accounts).
func HandleAdminActivatePlan(c *fiber.Ctx) error {
	tenant := middleware.TenantFromCtx(c)

	var req adminPlanRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	plan, err := plans.ParsePlan(req.Plan)
	if err != nil {
		return badRequest(c, "unknown plan")
	}
	period, err := plans.ParsePeriod(req.Period)
	if err != nil {
		return badRequest(c, "unknown billing period")
	}

	status, err := billingService.ActivatePlan(c.UserContext(), tenant.ID, plan, period)
	if err != nil {
		return respondBillingError(c, err)
	}
	return c.JSON(status)
}

// HandleAdminSuspendPlan suspends a tenant's subscription.
func HandleAdminSuspendPlan(c *fiber.Ctx) error {
	tenant := middleware.TenantFromCtx(c)

	var req adminPlanRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Reason == "" {
		return badRequest(c, "reason is required")
	}

	status, err := billingService.SuspendPlan(c.UserContext(), tenant.ID, req.Reason)
	if err != nil {
		return respondBillingError(c, err)
	}
	return c.JSON(status)
}

// HandleAdminReactivatePlan lifts a suspension while the paid period runs.
func HandleAdminReactivatePlan(c *fiber.Ctx) error {
	tenant := middleware.TenantFromCtx(c)

	status, err := billingService.ReactivatePlan(c.UserContext(), tenant.ID)
	if err != nil {
		return respondBillingError(c, err)
	}
	return c.JSON(status)
}

// HandleAdminChangePlan swaps the plan without touching the billing period.
func HandleAdminChangePlan(c *fiber.Ctx) error {
	tenant := middleware.TenantFromCtx(c)

	var req adminPlanRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	plan, err := plans.ParsePlan(req.Plan)
	if err != nil {
		return badRequest(c, "unknown plan")
	}

	status, err := billingService.ChangePlan(c.UserContext(), tenant.ID, plan)
	if err != nil {
		return respondBillingError(c, err)
	}
	return c.JSON(status)
}

// HandleAdminRunRecurringBilling triggers one recurring-billing batch outside
// the cron schedule.
func HandleAdminRunRecurringBilling(c *fiber.Ctx) error {
	report := billingService.RunRecurringBilling(c.UserContext())
	return c.JSON(report)
}

// HandleAdminRunExpirySweep triggers one expiry sweep outside the cron schedule.
func HandleAdminRunExpirySweep(c *fiber.Ctx) error {
	report := billingService.RunExpirySweep(c.UserContext())
	return c.JSON(report)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "bad_request",
		"message": message,
	})
}

// respondBillingError maps engine errors onto HTTP statuses.
func respondBillingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, billing.ErrTenantNotFound), errors.Is(err, billing.ErrSubscriptionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": err.Error()})
	case errors.Is(err, billing.ErrFreePlanNotBillable):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	case errors.Is(err, billing.ErrAlreadyBilled):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_billed", "message": err.Error()})
	case errors.Is(err, wompi.ErrTimeout):
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": "gateway_timeout", "message": err.Error()})
	}

	var stateErr *billing.InvalidStateError
	if errors.As(err, &stateErr) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "invalid_state", "message": stateErr.Error()})
	}
	var cfgErr *billing.ConfigError
	if errors.As(err, &cfgErr) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "billing_unavailable", "message": cfgErr.Error()})
	}
	var declined *billing.ChargeDeclinedError
	if errors.As(err, &declined) {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "charge_declined", "message": declined.Error()})
	}
	var gwErr *wompi.GatewayError
	if errors.As(err, &gwErr) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_error", "message": gwErr.Error()})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "billing operation failed"})
}
