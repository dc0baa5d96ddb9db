package main

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/wizardl22111-coder/leve1up-sub000/config"
	"github.com/wizardl22111-coder/leve1up-sub000/controller"
	"github.com/wizardl22111-coder/leve1up-sub000/kafka"
	"github.com/wizardl22111-coder/leve1up-sub000/mailer"
	"github.com/wizardl22111-coder/leve1up-sub000/middleware"
	"github.com/wizardl22111-coder/leve1up-sub000/routes"
	"github.com/wizardl22111-coder/leve1up-sub000/store"
)

func main() {
	cfg := config.Load()

	// ======================
	// STORES
	// ======================
	var durable store.Store
	if cfg.DurableConfigured() {
		durable = store.NewRedisStore(cfg.DurableBackendURL, cfg.DurableBackendToken)
	} else {
		log.Println("⚠️ durable backend not configured, running fallback-only")
	}
	db := store.NewBackends(durable)

	orderTTL := time.Duration(cfg.OrderTTLDays) * 24 * time.Hour
	orders := store.NewOrderStore(db, orderTTL)
	numbers := store.NewOrderNumberAllocator(db)
	tokens := store.NewTokenIssuer(db)
	reviews := store.NewReviewStore(db)

	// ======================
	// COLLABORATORS
	// ======================
	var mail mailer.Mailer = mailer.NopMailer{}
	if cfg.ResendAPIKey != "" {
		mail = mailer.NewResendMailer(cfg.ResendAPIKey, cfg.MailFrom)
	} else {
		log.Println("⚠️ RESEND_API_KEY not configured, confirmation emails disabled")
	}

	producer := kafka.NewProducer(cfg.KafkaBroker)

	// ======================
	// HTTP SERVER (Fiber)
	// ======================
	app := fiber.New()
	app.Use(logger.New())

	routes.Register(
		app,
		middleware.AuthRequired(cfg.JWTSecret),
		controller.NewOrderController(orders, numbers),
		controller.NewWebhookController(orders, tokens, mail, producer, cfg.BaseURL, cfg.DownloadTokenMinutes),
		controller.NewDownloadController(orders, tokens, cfg.BaseURL, cfg.DownloadTokenMinutes),
		controller.NewReviewController(reviews, orders),
	)

	log.Printf("HTTP server running on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("fiber error:", err)
	}
}
