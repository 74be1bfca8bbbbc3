package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/AndresVelasco/Inventia/app/controllers"
	"github.com/AndresVelasco/Inventia/internal/pkg/billing"
	"github.com/AndresVelasco/Inventia/internal/pkg/middleware"
)

// InstallRouter wires every HTTP route. The webhook route stays outside the
// rate limiter: the gateway retries aggressively and must never be throttled
// into a redelivery storm.
func InstallRouter(app *fiber.App, svc *billing.Service) {
	controllers.SetBillingService(svc)

	app.Post("/api/v1/billing/webhook", controllers.HandleBillingWebhook)

	api := app.Group("/api/v1", limiter.New())

	api.Post("/tenants", controllers.HandleRegisterTenant)

	tenant := api.Group("/tenants/:tenantID", middleware.TenantContext())

	// Billing endpoints stay reachable for suspended tenants so they can pay
	// their way back to ACTIVE.
	tenant.Get("/subscription", controllers.HandleGetSubscriptionStatus)
	tenant.Get("/checkout", controllers.HandleGetCheckoutConfig)
	tenant.Post("/payments/verify", controllers.HandleVerifyPayment)
	tenant.Post("/payment-source", controllers.HandleCreatePaymentSource)

	// Quota-bound resource creation requires an active tenant.
	resources := tenant.Group("/", middleware.RequireActiveTenant())
	resources.Post("/products", middleware.RequireQuota(svc, billing.ResourceProduct), controllers.HandleCreateProduct)
	resources.Post("/warehouses", middleware.RequireQuota(svc, billing.ResourceWarehouse), controllers.HandleCreateWarehouse)
	resources.Post("/invoices", middleware.RequireQuota(svc, billing.ResourceInvoice), controllers.HandleCreateInvoice)
	resources.Post("/users", controllers.HandleCreateUser)

	// Operator endpoints behind the shared admin key.
	admin := api.Group("/admin", middleware.AdminAPIKeyMiddleware())
	adminTenant := admin.Group("/tenants/:tenantID", middleware.TenantContext())
	adminTenant.Post("/activate", controllers.HandleAdminActivatePlan)
	adminTenant.Post("/suspend", controllers.HandleAdminSuspendPlan)
	adminTenant.Post("/reactivate", controllers.HandleAdminReactivatePlan)
	adminTenant.Post("/change-plan", controllers.HandleAdminChangePlan)
	admin.Post("/jobs/recurring-billing", controllers.HandleAdminRunRecurringBilling)
	admin.Post("/jobs/expiry-sweep", controllers.HandleAdminRunExpirySweep)
}
