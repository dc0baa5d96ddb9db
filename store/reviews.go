package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wizardl22111-coder/leve1up-sub000/model"
)

const (
	reviewKeyPrefix      = "review:"
	productReviewsPrefix = "product_reviews:"
	userReviewsPrefix    = "user_reviews:"
)

// ReviewStore keeps per-product review collections and computes rating
// summaries on demand. Same backend duality as the order store.
//
// One review per (product, author) is intended but not enforced atomically:
// HasReviewed lets the handler pre-check, and a race that slips through
// simply leaves two reviews in the set.
type ReviewStore struct {
	db Backends
}

func NewReviewStore(db Backends) *ReviewStore {
	return &ReviewStore{db: db}
}

// Add assigns the id and timestamp, persists the review and registers it in
// the product's and the author's review sets.
func (s *ReviewStore) Add(ctx context.Context, review *model.Review) (*model.Review, error) {
	if review.ID == "" {
		review.ID = "review_" + uuid.NewString()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}

	if st := s.db.Durable; st != nil {
		err := addReview(ctx, st, review)
		if err == nil {
			log.Printf("🌟 Review added: %s (%d/5 by %s)", review.ID, review.Rating, review.AuthorEmail)
			return review, nil
		}
		log.Printf("⚠️ durable backend error on review add, falling back to memory: %v", err)
	}
	if err := addReview(ctx, s.db.Fallback, review); err != nil {
		return nil, err
	}
	return review, nil
}

func addReview(ctx context.Context, st Store, review *model.Review) error {
	raw, err := json.Marshal(review)
	if err != nil {
		return err
	}
	if err := st.Set(ctx, reviewKeyPrefix+review.ID, string(raw)); err != nil {
		return err
	}
	if err := st.SAdd(ctx, fmt.Sprintf("%s%d", productReviewsPrefix, review.ProductID), review.ID); err != nil {
		return err
	}
	return st.SAdd(ctx, userReviewsPrefix+strings.ToLower(review.AuthorEmail), review.ID)
}

// ListByProduct returns the product's reviews, newest first, optionally
// restricted to approved ones.
func (s *ReviewStore) ListByProduct(ctx context.Context, productID int, approvedOnly bool) ([]model.Review, error) {
	reviews, err := s.collect(ctx, fmt.Sprintf("%s%d", productReviewsPrefix, productID))
	if err != nil {
		return nil, err
	}
	if approvedOnly {
		filtered := reviews[:0]
		for _, review := range reviews {
			if review.Approved {
				filtered = append(filtered, review)
			}
		}
		reviews = filtered
	}
	return reviews, nil
}

// ListByAuthor returns every review the author has written, newest first.
func (s *ReviewStore) ListByAuthor(ctx context.Context, email string) ([]model.Review, error) {
	return s.collect(ctx, userReviewsPrefix+strings.ToLower(email))
}

// HasReviewed reports whether the author already reviewed the product.
func (s *ReviewStore) HasReviewed(ctx context.Context, email string, productID int) (bool, error) {
	reviews, err := s.ListByAuthor(ctx, email)
	if err != nil {
		return false, err
	}
	for i := range reviews {
		if reviews[i].ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

func (s *ReviewStore) collect(ctx context.Context, setKey string) ([]model.Review, error) {
	if st := s.db.Durable; st != nil {
		reviews, err := collectReviews(ctx, st, setKey)
		if err == nil {
			return reviews, nil
		}
		log.Printf("⚠️ durable backend error on review lookup, falling back to memory: %v", err)
	}
	return collectReviews(ctx, s.db.Fallback, setKey)
}

func collectReviews(ctx context.Context, st Store, setKey string) ([]model.Review, error) {
	ids, err := st.SMembers(ctx, setKey)
	if err != nil {
		return nil, err
	}
	reviews := make([]model.Review, 0, len(ids))
	for _, id := range ids {
		raw, err := st.Get(ctx, reviewKeyPrefix+id)
		if err != nil {
			continue
		}
		var review model.Review
		if err := json.Unmarshal([]byte(raw), &review); err != nil {
			log.Printf("⚠️ skipping unparseable review %s: %v", id, err)
			continue
		}
		reviews = append(reviews, review)
	}
	sort.Slice(reviews, func(i, j int) bool {
		return reviews[i].CreatedAt.After(reviews[j].CreatedAt)
	})
	return reviews, nil
}

// Summary recomputes the product's rating aggregate from the full approved
// review set. O(n) per call; review counts per product are small.
func (s *ReviewStore) Summary(ctx context.Context, productID int) (*model.ReviewSummary, error) {
	reviews, err := s.ListByProduct(ctx, productID, true)
	if err != nil {
		return nil, err
	}

	summary := &model.ReviewSummary{
		TotalReviews:       len(reviews),
		RatingDistribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
	}
	if len(reviews) == 0 {
		return summary, nil
	}

	total := 0
	for i := range reviews {
		summary.RatingDistribution[reviews[i].Rating]++
		total += reviews[i].Rating
	}
	mean := float64(total) / float64(len(reviews))
	summary.AverageRating = math.Round(mean*10) / 10
	return summary, nil
}
