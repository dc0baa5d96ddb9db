package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizardl22111-coder/leve1up-sub000/model"
	"github.com/wizardl22111-coder/leve1up-sub000/store"
)

func addRatedReviews(t *testing.T, s *store.ReviewStore, productID int, ratings ...int) {
	t.Helper()
	ctx := context.Background()
	for i, rating := range ratings {
		_, err := s.Add(ctx, &model.Review{
			ProductID:   productID,
			AuthorEmail: string(rune('a'+i)) + "@x.com",
			Rating:      rating,
			Body:        "solid guide",
			Approved:    true,
			CreatedAt:   time.Now().Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
}

func TestSummaryAverageAndHistogram(t *testing.T) {
	s := store.NewReviewStore(durableBackends())
	addRatedReviews(t, s, 7, 5, 4, 4, 2)

	summary, err := s.Summary(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.TotalReviews)
	assert.Equal(t, 3.8, summary.AverageRating, "mean rounded to one decimal")

	total := 0
	for _, count := range summary.RatingDistribution {
		total += count
	}
	assert.Equal(t, summary.TotalReviews, total, "histogram sums to n")
	assert.Equal(t, 1, summary.RatingDistribution[5])
	assert.Equal(t, 2, summary.RatingDistribution[4])
	assert.Equal(t, 1, summary.RatingDistribution[2])
}

func TestSummaryEmptyProduct(t *testing.T) {
	s := store.NewReviewStore(durableBackends())

	summary, err := s.Summary(context.Background(), 404)
	require.NoError(t, err)
	assert.Zero(t, summary.TotalReviews)
	assert.Zero(t, summary.AverageRating)
}

func TestListByProductApprovedFilter(t *testing.T) {
	s := store.NewReviewStore(durableBackends())
	ctx := context.Background()

	_, err := s.Add(ctx, &model.Review{ProductID: 7, AuthorEmail: "a@x.com", Rating: 5, Approved: true})
	require.NoError(t, err)
	_, err = s.Add(ctx, &model.Review{ProductID: 7, AuthorEmail: "b@x.com", Rating: 1, Approved: false})
	require.NoError(t, err)

	visible, err := s.ListByProduct(ctx, 7, true)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "a@x.com", visible[0].AuthorEmail)

	all, err := s.ListByProduct(ctx, 7, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// The pending review never leaks into the summary either.
	summary, err := s.Summary(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalReviews)
}

func TestHasReviewedAndListByAuthor(t *testing.T) {
	s := store.NewReviewStore(durableBackends())
	ctx := context.Background()

	_, err := s.Add(ctx, &model.Review{ProductID: 7, AuthorEmail: "A@X.com", Rating: 4, Approved: true})
	require.NoError(t, err)

	reviewed, err := s.HasReviewed(ctx, "a@x.com", 7)
	require.NoError(t, err)
	assert.True(t, reviewed, "author match is case-insensitive")

	reviewed, err = s.HasReviewed(ctx, "a@x.com", 8)
	require.NoError(t, err)
	assert.False(t, reviewed)

	mine, err := s.ListByAuthor(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestReviewFallbackWhenBackendDown(t *testing.T) {
	s := store.NewReviewStore(failingBackends())
	ctx := context.Background()

	_, err := s.Add(ctx, &model.Review{ProductID: 7, AuthorEmail: "a@x.com", Rating: 3, Approved: true})
	require.NoError(t, err)

	reviews, err := s.ListByProduct(ctx, 7, true)
	require.NoError(t, err)
	assert.Len(t, reviews, 1)
}
