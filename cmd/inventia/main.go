package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"

	"github.com/AndresVelasco/Inventia/app/repository"
	"github.com/AndresVelasco/Inventia/internal/pkg/billing"
	"github.com/AndresVelasco/Inventia/internal/pkg/cache"
	"github.com/AndresVelasco/Inventia/internal/pkg/database"
	"github.com/AndresVelasco/Inventia/internal/pkg/env"
	"github.com/AndresVelasco/Inventia/internal/pkg/notify"
	"github.com/AndresVelasco/Inventia/internal/pkg/router"
	"github.com/AndresVelasco/Inventia/internal/pkg/wompi"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeStore(database.GetDB())
	store := repository.GetStore()

	svc := billing.NewService(
		store,
		wompi.NewClientFromEnv(),
		notify.NewMailNotifier(store),
		cache.Deduper{},
		billing.ConfigFromEnv(),
	)

	startSchedulers(svc)

	app := fiber.New(fiber.Config{
		AppName: "Inventia",
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	router.InstallRouter(app, svc)

	return app
}

// startSchedulers runs the two daily billing jobs. Schedules are overridable
// for staging environments that compress the billing cycle.
func startSchedulers(svc *billing.Service) {
	c := cron.New()

	recurringSpec := env.GetEnv("BILLING_RECURRING_SCHEDULE", "0 3 * * *")
	if _, err := c.AddFunc(recurringSpec, func() {
		svc.RunRecurringBilling(context.Background())
	}); err != nil {
		log.Fatalf("invalid recurring billing schedule %q: %v", recurringSpec, err)
	}

	expirySpec := env.GetEnv("BILLING_EXPIRY_SCHEDULE", "0 4 * * *")
	if _, err := c.AddFunc(expirySpec, func() {
		svc.RunExpirySweep(context.Background())
	}); err != nil {
		log.Fatalf("invalid expiry sweep schedule %q: %v", expirySpec, err)
	}

	c.Start()
}
