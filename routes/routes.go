package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wizardl22111-coder/leve1up-sub000/controller"
	"github.com/wizardl22111-coder/leve1up-sub000/middleware"
)

// Register wires the HTTP surface.
func Register(
	app *fiber.App,
	authMiddleware fiber.Handler,
	oc *controller.OrderController,
	wc *controller.WebhookController,
	dc *controller.DownloadController,
	rc *controller.ReviewController,
) {
	api := app.Group("/api")

	// =========================
	// ORDERS
	// =========================
	orders := api.Group("/orders")
	orders.Post("/", oc.Create)
	orders.Get("/", oc.Lookup) // ?session_id= | ?payment_id= | ?order_number=
	orders.Get("/all", authMiddleware, middleware.RoleRequired("admin"), oc.ListAll)
	orders.Get("/:id", oc.Get)
	orders.Patch("/:id", oc.Patch)

	api.Get("/user/orders", authMiddleware, oc.ListMine)

	// =========================
	// GATEWAY WEBHOOK
	// =========================
	api.Post("/webhook", wc.HandlePaymentEvent)

	// =========================
	// DOWNLOADS
	// =========================
	api.Post("/download/token", authMiddleware, dc.IssueToken)
	api.Get("/download/:token", dc.Redeem)

	// =========================
	// REVIEWS
	// =========================
	reviews := api.Group("/reviews")
	reviews.Post("/", authMiddleware, rc.Create)
	reviews.Get("/", rc.ListByProduct)
	reviews.Get("/summary", rc.Summary)

	api.Get("/user/reviews", authMiddleware, rc.ListMine)
}
