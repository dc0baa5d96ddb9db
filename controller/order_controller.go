package controller

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/wizardl22111-coder/leve1up-sub000/model"
	"github.com/wizardl22111-coder/leve1up-sub000/store"
)

// OrderController owns the order HTTP surface: checkout creation, lookup by
// any of the four keys, the customer's own order list, and partial updates.
type OrderController struct {
	Orders  *store.OrderStore
	Numbers *store.OrderNumberAllocator
}

func NewOrderController(orders *store.OrderStore, numbers *store.OrderNumberAllocator) *OrderController {
	return &OrderController{Orders: orders, Numbers: numbers}
}

// Create records a purchase intent before the client is redirected to the
// gateway. Zero-amount orders are free downloads and are born completed.
func (oc *OrderController) Create(c *fiber.Ctx) error {
	var body struct {
		SessionID     string            `json:"session_id"`
		PaymentID     string            `json:"payment_id"`
		Amount        float64           `json:"amount"`
		Currency      string            `json:"currency"`
		CustomerEmail string            `json:"customer_email"`
		CustomerName  string            `json:"customer_name"`
		Items         []model.OrderItem `json:"items"`
		Metadata      map[string]string `json:"metadata"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}
	if len(body.Items) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "order needs at least one item"})
	}
	if body.Amount < 0 {
		return c.Status(400).JSON(fiber.Map{"error": "invalid amount"})
	}

	status := model.StatusPending
	if body.Amount == 0 {
		status = model.StatusCompleted
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	order, err := oc.Orders.Create(ctx, &model.Order{
		SessionID:     body.SessionID,
		PaymentID:     body.PaymentID,
		Status:        status,
		Amount:        body.Amount,
		Currency:      body.Currency,
		CustomerEmail: body.CustomerEmail,
		CustomerName:  body.CustomerName,
		Items:         body.Items,
		Metadata:      body.Metadata,
	})
	if err != nil {
		return respondError(c, err)
	}

	orderNumber := ""
	if order.CustomerEmail != "" {
		orderNumber, err = oc.Numbers.Allocate(ctx, order.CustomerEmail)
		if err == nil {
			// Link before the number reaches the customer; a crash in
			// between only burns a sequence number.
			if err := oc.Numbers.Link(ctx, orderNumber, order.ID); err != nil {
				log.Printf("⚠️ could not link order number %s: %v", orderNumber, err)
			}
		}
	}

	return c.Status(201).JSON(fiber.Map{"order": order, "order_number": orderNumber})
}

// Get returns a single order by internal id.
func (oc *OrderController) Get(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	order, err := oc.Orders.FindByID(ctx, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if order == nil {
		return c.Status(404).JSON(fiber.Map{"error": "order not found"})
	}
	return c.JSON(order)
}

// Lookup resolves an order by exactly one of session_id, payment_id or
// order_number. Order numbers are format-checked before any lookup.
func (oc *OrderController) Lookup(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		order *model.Order
		err   error
	)
	switch {
	case c.Query("session_id") != "":
		order, err = oc.Orders.FindBySessionID(ctx, c.Query("session_id"))
	case c.Query("payment_id") != "":
		order, err = oc.Orders.FindByPaymentID(ctx, c.Query("payment_id"))
	case c.Query("order_number") != "":
		number := c.Query("order_number")
		if !store.ValidOrderNumber(number) {
			return c.Status(400).JSON(fiber.Map{"error": "invalid order number format"})
		}
		var id string
		id, err = oc.Numbers.Resolve(ctx, number)
		if err == nil && id != "" {
			order, err = oc.Orders.FindByID(ctx, id)
		}
	default:
		return c.Status(400).JSON(fiber.Map{"error": "missing lookup key"})
	}

	if err != nil {
		return respondError(c, err)
	}
	if order == nil {
		return c.Status(404).JSON(fiber.Map{"error": "order not found"})
	}
	return c.JSON(order)
}

// ListMine returns the authenticated customer's orders, newest first.
func (oc *OrderController) ListMine(c *fiber.Ctx) error {
	email := c.Locals("user_email").(string)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	orders, err := oc.Orders.FindByCustomerEmail(ctx, email)
	if err != nil {
		return respondError(c, err)
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return c.JSON(orders)
}

// ListAll returns every order; admin only.
func (oc *OrderController) ListAll(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	orders, err := oc.Orders.All(ctx)
	if err != nil {
		return respondError(c, err)
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return c.JSON(orders)
}

// Patch merges partial fields into an order. This is how a checkout
// attaches the gateway payment id before the redirect, and how an
// administrator refunds a paid order. Status changes must follow the
// transition table.
func (oc *OrderController) Patch(c *fiber.Ctx) error {
	var body struct {
		SessionID     *string           `json:"session_id"`
		PaymentID     *string           `json:"payment_id"`
		Status        *string           `json:"status"`
		CustomerEmail *string           `json:"customer_email"`
		CustomerName  *string           `json:"customer_name"`
		Metadata      map[string]string `json:"metadata"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := c.Params("id")
	var paidAt *time.Time
	if body.Status != nil {
		current, err := oc.Orders.FindByID(ctx, id)
		if err != nil {
			return respondError(c, err)
		}
		if current == nil {
			return c.Status(404).JSON(fiber.Map{"error": "order not found"})
		}
		if *body.Status != current.Status && !model.CanTransition(current.Status, *body.Status) {
			return c.Status(422).JSON(fiber.Map{"error": "illegal status transition"})
		}
		// paidAt travels with the pending→paid transition, no matter
		// which surface drives it.
		if *body.Status == model.StatusPaid && current.Status != model.StatusPaid {
			now := time.Now().UTC()
			paidAt = &now
		}
	}

	order, err := oc.Orders.Update(ctx, id, store.OrderUpdate{
		SessionID:     body.SessionID,
		PaymentID:     body.PaymentID,
		Status:        body.Status,
		PaidAt:        paidAt,
		CustomerEmail: body.CustomerEmail,
		CustomerName:  body.CustomerName,
		Metadata:      body.Metadata,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(order)
}

// respondError maps store sentinels to HTTP statuses.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, store.ErrConflict):
		return c.Status(409).JSON(fiber.Map{"error": "payment id already bound to another order"})
	case errors.Is(err, store.ErrExpired):
		return c.Status(410).JSON(fiber.Map{"error": "expired"})
	default:
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
}
