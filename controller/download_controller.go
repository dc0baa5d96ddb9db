package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/wizardl22111-coder/leve1up-sub000/store"
)

// DownloadController issues download credentials to entitled customers and
// resolves them back to the purchased file.
type DownloadController struct {
	Orders *store.OrderStore
	Tokens *store.TokenIssuer

	BaseURL         string
	TokenTTLMinutes int
}

func NewDownloadController(orders *store.OrderStore, tokens *store.TokenIssuer, baseURL string, tokenTTLMinutes int) *DownloadController {
	return &DownloadController{
		Orders:          orders,
		Tokens:          tokens,
		BaseURL:         baseURL,
		TokenTTLMinutes: tokenTTLMinutes,
	}
}

// IssueToken mints a fresh download link for a product the authenticated
// customer has paid for.
func (dc *DownloadController) IssueToken(c *fiber.Ctx) error {
	email := c.Locals("user_email").(string)

	var body struct {
		OrderID   string `json:"order_id"`
		ProductID int    `json:"product_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	order, err := dc.Orders.FindByID(ctx, body.OrderID)
	if err != nil {
		return respondError(c, err)
	}
	if order == nil {
		return c.Status(404).JSON(fiber.Map{"error": "order not found"})
	}
	if order.CustomerEmail == "" || order.CustomerEmail != email {
		return c.Status(403).JSON(fiber.Map{"error": "order belongs to another customer"})
	}
	if !order.Fulfilled() {
		return c.Status(403).JSON(fiber.Map{"error": "order not paid"})
	}
	if !order.HasProduct(body.ProductID) {
		return c.Status(404).JSON(fiber.Map{"error": "product not part of this order"})
	}

	token, err := dc.Tokens.Issue(ctx, order.ID, body.ProductID, dc.TokenTTLMinutes)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(201).JSON(fiber.Map{
		"download_url": fmt.Sprintf("%s/api/download/%s?product=%d", dc.BaseURL, token, body.ProductID),
		"expires_in":   strconv.Itoa(dc.TokenTTLMinutes) + "m",
	})
}

// Redeem exchanges a bearer token for the purchased file. The token gates
// time, not download count: repeat redemptions inside the TTL succeed.
func (dc *DownloadController) Redeem(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	binding, err := dc.Tokens.Redeem(ctx, c.Params("token"))
	if err != nil {
		if errors.Is(err, store.ErrExpired) {
			return c.Status(410).JSON(fiber.Map{"error": "download link expired, request a new one"})
		}
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "invalid download link"})
		}
		return respondError(c, err)
	}

	order, err := dc.Orders.FindByID(ctx, binding.OrderID)
	if err != nil {
		return respondError(c, err)
	}
	if order == nil {
		return c.Status(404).JSON(fiber.Map{"error": "order no longer available"})
	}

	for _, item := range order.Items {
		if item.ProductID == binding.ProductRef && item.DownloadRef != "" {
			c.Set("Cache-Control", "no-store, no-cache, must-revalidate")
			c.Set("X-Robots-Tag", "noindex, nofollow")
			return c.Redirect(item.DownloadRef, fiber.StatusFound)
		}
	}
	return c.Status(404).JSON(fiber.Map{"error": "file not available"})
}
