package model

import "time"

type Review struct {
	ID          string    `json:"id"`
	ProductID   int       `json:"product_id"`
	AuthorEmail string    `json:"author_email"`
	AuthorName  string    `json:"author_name,omitempty"`
	Rating      int       `json:"rating"` // 1-5 stars
	Title       string    `json:"title,omitempty"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
	Approved    bool      `json:"approved"` // visibility gate
	Verified    bool      `json:"verified"` // author purchased the product
}

// ReviewSummary is recomputed on demand from the product's review set.
type ReviewSummary struct {
	TotalReviews       int         `json:"total_reviews"`
	AverageRating      float64     `json:"average_rating"`
	RatingDistribution map[int]int `json:"rating_distribution"`
}
