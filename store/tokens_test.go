package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-package so the clock can be fixed.
func newTestIssuer() (*TokenIssuer, *time.Time) {
	now := time.Now()
	issuer := NewTokenIssuer(NewBackends(NewMemoryStore()))
	issuer.now = func() time.Time { return now }
	return issuer, &now
}

func TestIssueAndRedeem(t *testing.T) {
	issuer, _ := newTestIssuer()
	ctx := context.Background()

	token, err := issuer.Issue(ctx, "o2", 7, 10)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	binding, err := issuer.Redeem(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "o2", binding.OrderID)
	assert.Equal(t, 7, binding.ProductRef)
}

func TestRedeemRespectsTTLBoundary(t *testing.T) {
	issuer, now := newTestIssuer()
	ctx := context.Background()

	token, err := issuer.Issue(ctx, "o2", 7, 10)
	require.NoError(t, err)

	// One minute before expiry: still good.
	*now = now.Add(9 * time.Minute)
	_, err = issuer.Redeem(ctx, token)
	require.NoError(t, err)

	// One minute past expiry: gone.
	*now = now.Add(2 * time.Minute)
	_, err = issuer.Redeem(ctx, token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestRedeemIsRepeatableWithinTTL(t *testing.T) {
	issuer, _ := newTestIssuer()
	ctx := context.Background()

	token, err := issuer.Issue(ctx, "o2", 7, 10)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		binding, err := issuer.Redeem(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "o2", binding.OrderID)
	}
}

func TestRedeemUnknownToken(t *testing.T) {
	issuer, _ := newTestIssuer()

	_, err := issuer.Redeem(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokensAreUnique(t *testing.T) {
	issuer, _ := newTestIssuer()
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := issuer.Issue(ctx, "o2", 7, 10)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(token), 43, "256 bits of entropy expected")
		require.False(t, seen[token])
		seen[token] = true
	}
}
