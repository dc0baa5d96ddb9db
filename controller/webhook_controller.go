package controller

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/wizardl22111-coder/leve1up-sub000/kafka"
	"github.com/wizardl22111-coder/leve1up-sub000/mailer"
	"github.com/wizardl22111-coder/leve1up-sub000/model"
	"github.com/wizardl22111-coder/leve1up-sub000/store"
)

const paymentStatusEvent = "payment_intent.status.updated"

// subunitDivisors converts gateway amounts (minor units) back to major
// units for the diagnostic log. Unlisted currencies divide by 100.
var subunitDivisors = map[string]float64{
	"BHD": 1000,
	"KWD": 1000,
	"OMR": 1000,
	"JPY": 1,
}

// gatewayEvent is the inbound callback body. The gateway's JSON contract is
// an external, versionless boundary: every field is optional and parsing
// must never fail the request.
type gatewayEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		Amount       int64  `json:"amount"`
		CurrencyCode string `json:"currency_code"`
		Currency     string `json:"currency"`
		Message      string `json:"message"`
	} `json:"data"`
}

// WebhookController reconciles asynchronous gateway callbacks against the
// order ledger and fires fulfillment exactly once per successful payment.
type WebhookController struct {
	Orders   *store.OrderStore
	Tokens   *store.TokenIssuer
	Mailer   mailer.Mailer
	Producer *kafka.Producer

	BaseURL         string
	TokenTTLMinutes int
}

func NewWebhookController(orders *store.OrderStore, tokens *store.TokenIssuer, m mailer.Mailer, producer *kafka.Producer, baseURL string, tokenTTLMinutes int) *WebhookController {
	return &WebhookController{
		Orders:          orders,
		Tokens:          tokens,
		Mailer:          m,
		Producer:        producer,
		BaseURL:         baseURL,
		TokenTTLMinutes: tokenTTLMinutes,
	}
}

// HandlePaymentEvent consumes the gateway callback. The response is 200 in
// every branch once the body has been read: a non-2xx would only trigger
// gateway retries, which cannot fix a malformed payload and add duplicate
// pressure on a valid one.
func (wc *WebhookController) HandlePaymentEvent(c *fiber.Ctx) error {
	var event gatewayEvent
	if err := c.BodyParser(&event); err != nil {
		log.Printf("❌ unparseable webhook payload: %v", err)
		return c.Status(200).JSON(fiber.Map{"received": true, "error": "malformed payload"})
	}

	if event.Event != paymentStatusEvent {
		return c.Status(200).JSON(fiber.Map{"received": true})
	}
	if event.Data.ID == "" {
		log.Printf("❌ webhook payload missing payment id")
		return c.Status(200).JSON(fiber.Map{"received": true, "error": "missing payment id"})
	}

	switch event.Data.Status {
	case "completed":
		return wc.handleCompleted(c, event)
	case "failed":
		return wc.handleFailed(c, event)
	default:
		return c.Status(200).JSON(fiber.Map{"received": true})
	}
}

func (wc *WebhookController) handleCompleted(c *fiber.Ctx, event gatewayEvent) error {
	// The gateway abandons and retries after a few seconds; stay well
	// inside that window.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	paymentID := event.Data.ID

	currency := event.Data.CurrencyCode
	if currency == "" {
		currency = event.Data.Currency
	}
	amount := fromSubunit(event.Data.Amount, currency)
	log.Printf("📦 Gateway reported payment %s completed (%.2f %s)", paymentID, amount, currency)

	order, err := wc.Orders.FindByPaymentID(ctx, paymentID)
	if err != nil {
		log.Printf("❌ lookup failed for payment %s: %v", paymentID, err)
		return c.Status(200).JSON(fiber.Map{"received": true, "error": "lookup failed"})
	}
	if order == nil {
		// Expected when the backend was down at order-creation time and
		// the purchase was tracked client-side only. The webhook is
		// authoritative for state, not for order existence.
		log.Printf("ℹ️ No order found for payment %s, delivered via client-side session", paymentID)
		return c.Status(200).JSON(fiber.Map{"received": true, "note": "order delivered via client-side session"})
	}

	if order.Status == model.StatusPaid || order.Status == model.StatusCompleted {
		// Gateways retry; a duplicate delivery is a no-op success and
		// must not re-send the fulfillment email.
		log.Printf("ℹ️ Duplicate webhook for order %s (already %s)", order.ID, order.Status)
		return c.Status(200).JSON(fiber.Map{"received": true, "note": "duplicate delivery"})
	}
	if order.Status != model.StatusPending {
		log.Printf("⚠️ Webhook for order %s ignored: terminal status %s", order.ID, order.Status)
		return c.Status(200).JSON(fiber.Map{"received": true, "note": "order in terminal status"})
	}

	now := time.Now().UTC()
	paid := model.StatusPaid
	order, err = wc.Orders.Update(ctx, order.ID, store.OrderUpdate{Status: &paid, PaidAt: &now})
	if err != nil {
		log.Printf("❌ failed to mark order paid for payment %s: %v", paymentID, err)
		return c.Status(200).JSON(fiber.Map{"received": true, "error": "update failed"})
	}

	wc.Producer.PublishOrderPaid(order)
	wc.fulfill(ctx, order)

	return c.Status(200).JSON(fiber.Map{"received": true})
}

// fulfill issues download tokens and dispatches the confirmation email. A
// failed send is logged only: financial state never depends on notification
// delivery. A successful send advances the order to completed.
func (wc *WebhookController) fulfill(ctx context.Context, order *model.Order) {
	links := make(map[int]string)
	for _, item := range order.Items {
		if item.DownloadRef == "" {
			continue
		}
		token, err := wc.Tokens.Issue(ctx, order.ID, item.ProductID, wc.TokenTTLMinutes)
		if err != nil {
			log.Printf("⚠️ could not issue download token for order %s product %d: %v", order.ID, item.ProductID, err)
			continue
		}
		links[item.ProductID] = fmt.Sprintf("%s/api/download/%s?product=%d", wc.BaseURL, token, item.ProductID)
	}

	sent, err := wc.Mailer.SendOrderConfirmation(ctx, order, links)
	if err != nil || !sent {
		log.Printf("⚠️ confirmation email not sent for order %s (customer keeps gateway receipt): %v", order.ID, err)
		return
	}
	log.Printf("✉️ Confirmation email sent to %s", order.CustomerEmail)

	completed := model.StatusCompleted
	if _, err := wc.Orders.Update(ctx, order.ID, store.OrderUpdate{Status: &completed}); err != nil {
		log.Printf("⚠️ could not mark order %s completed: %v", order.ID, err)
	}
}

func (wc *WebhookController) handleFailed(c *fiber.Ctx, event gatewayEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	order, err := wc.Orders.FindByPaymentID(ctx, event.Data.ID)
	if err != nil || order == nil {
		return c.Status(200).JSON(fiber.Map{"received": true})
	}
	if order.Status != model.StatusPending {
		return c.Status(200).JSON(fiber.Map{"received": true, "note": "order not pending"})
	}

	failed := model.StatusFailed
	if _, err := wc.Orders.Update(ctx, order.ID, store.OrderUpdate{Status: &failed}); err != nil {
		log.Printf("❌ failed to mark order %s failed: %v", order.ID, err)
	}
	return c.Status(200).JSON(fiber.Map{"received": true})
}

func fromSubunit(amount int64, currency string) float64 {
	divisor, ok := subunitDivisors[currency]
	if !ok {
		divisor = 100
	}
	return float64(amount) / divisor
}
