package controller

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/wizardl22111-coder/leve1up-sub000/model"
	"github.com/wizardl22111-coder/leve1up-sub000/store"
)

type ReviewController struct {
	Reviews *store.ReviewStore
	Orders  *store.OrderStore
}

func NewReviewController(reviews *store.ReviewStore, orders *store.OrderStore) *ReviewController {
	return &ReviewController{Reviews: reviews, Orders: orders}
}

// Create adds a review under the authenticated customer's email. One review
// per product and author is pre-checked, not atomically enforced.
func (rc *ReviewController) Create(c *fiber.Ctx) error {
	email := c.Locals("user_email").(string)

	var body struct {
		ProductID  int    `json:"product_id"`
		Rating     int    `json:"rating"`
		Title      string `json:"title"`
		Body       string `json:"body"`
		AuthorName string `json:"author_name"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}
	if body.Rating < 1 || body.Rating > 5 {
		return c.Status(400).JSON(fiber.Map{"error": "rating must be between 1 and 5"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	already, err := rc.Reviews.HasReviewed(ctx, email, body.ProductID)
	if err != nil {
		return respondError(c, err)
	}
	if already {
		return c.Status(409).JSON(fiber.Map{"error": "you already reviewed this product"})
	}

	verified, err := rc.Orders.HasPurchased(ctx, email, body.ProductID)
	if err != nil {
		log.Printf("⚠️ purchase check failed for %s: %v", email, err)
	}

	review, err := rc.Reviews.Add(ctx, &model.Review{
		ProductID:   body.ProductID,
		AuthorEmail: email,
		AuthorName:  body.AuthorName,
		Rating:      body.Rating,
		Title:       body.Title,
		Body:        body.Body,
		Approved:    true,
		Verified:    verified,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(201).JSON(review)
}

// ListByProduct returns a product's approved reviews. include_pending=true
// lifts the visibility gate (admin-only route).
func (rc *ReviewController) ListByProduct(c *fiber.Ctx) error {
	productID, err := strconv.Atoi(c.Query("product_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid product_id"})
	}
	approvedOnly := c.Query("include_pending") != "true"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reviews, err := rc.Reviews.ListByProduct(ctx, productID, approvedOnly)
	if err != nil {
		return respondError(c, err)
	}
	if reviews == nil {
		reviews = []model.Review{}
	}
	return c.JSON(reviews)
}

// ListMine returns the authenticated customer's reviews.
func (rc *ReviewController) ListMine(c *fiber.Ctx) error {
	email := c.Locals("user_email").(string)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reviews, err := rc.Reviews.ListByAuthor(ctx, email)
	if err != nil {
		return respondError(c, err)
	}
	if reviews == nil {
		reviews = []model.Review{}
	}
	return c.JSON(reviews)
}

// Summary returns the aggregate rating for a product.
func (rc *ReviewController) Summary(c *fiber.Ctx) error {
	productID, err := strconv.Atoi(c.Query("product_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid product_id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	summary, err := rc.Reviews.Summary(ctx, productID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(summary)
}
