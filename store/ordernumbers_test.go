package store_test

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizardl22111-coder/leve1up-sub000/store"
)

func TestAllocateSequential(t *testing.T) {
	a := store.NewOrderNumberAllocator(durableBackends())
	ctx := context.Background()

	for i, want := range []string{"a@x.com-001", "a@x.com-002", "a@x.com-003"} {
		got, err := a.Allocate(ctx, "a@x.com")
		require.NoError(t, err, "allocation %d", i+1)
		assert.Equal(t, want, got)
	}

	count, err := a.CustomerOrderCount(ctx, "a@x.com")
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestAllocateSeparateSequencesPerCustomer(t *testing.T) {
	a := store.NewOrderNumberAllocator(durableBackends())
	ctx := context.Background()

	first, err := a.Allocate(ctx, "a@x.com")
	require.NoError(t, err)
	second, err := a.Allocate(ctx, "b@y.com")
	require.NoError(t, err)

	assert.Equal(t, "a@x.com-001", first)
	assert.Equal(t, "b@y.com-001", second)
}

func TestAllocateConcurrentNoDuplicates(t *testing.T) {
	a := store.NewOrderNumberAllocator(durableBackends())
	ctx := context.Background()

	const n = 100
	numbers := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			number, err := a.Allocate(ctx, "a@x.com")
			assert.NoError(t, err)
			numbers[i] = number
		}(i)
	}
	wg.Wait()

	suffixes := make([]int, 0, n)
	seen := make(map[string]bool)
	for _, number := range numbers {
		require.False(t, seen[number], "duplicate order number %s", number)
		seen[number] = true
		suffix, err := strconv.Atoi(number[strings.LastIndex(number, "-")+1:])
		require.NoError(t, err)
		suffixes = append(suffixes, suffix)
	}
	sort.Ints(suffixes)
	for i, suffix := range suffixes {
		assert.Equal(t, i+1, suffix, "sequence has a gap or duplicate")
	}
}

func TestAllocateFallbackBreaksCanonicalFormat(t *testing.T) {
	a := store.NewOrderNumberAllocator(failingBackends())

	number, err := a.Allocate(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(number, "a@x.com-T"))
	assert.False(t, store.ValidOrderNumber(number),
		"fallback numbers must be distinguishable from sequential ones")
}

func TestLinkAndResolveBothDirections(t *testing.T) {
	a := store.NewOrderNumberAllocator(durableBackends())
	ctx := context.Background()

	number, err := a.Allocate(ctx, "a@x.com")
	require.NoError(t, err)
	require.NoError(t, a.Link(ctx, number, "o1"))

	id, err := a.Resolve(ctx, number)
	require.NoError(t, err)
	assert.Equal(t, "o1", id)

	back, err := a.ResolveReverse(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, number, back)
}

func TestResolveMissReturnsEmpty(t *testing.T) {
	a := store.NewOrderNumberAllocator(durableBackends())

	id, err := a.Resolve(context.Background(), "a@x.com-999")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestValidOrderNumber(t *testing.T) {
	cases := []struct {
		number string
		valid  bool
	}{
		{"a@x.com-001", true},
		{"a@x.com-1234", true},
		{fmt.Sprintf("a@x.com-%d", 1698765432100), true}, // long digit run still matches
		{"a@x.com-T1698765432100", false},                // availability fallback
		{"a@x.com-01", false},                            // fewer than 3 digits
		{"a@x.com", false},
		{"not-an-email-001", false},
		{"a b@x.com-001", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.valid, store.ValidOrderNumber(tc.number), tc.number)
	}
}

func TestExtractEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", store.ExtractEmail("a@x.com-007"))
	assert.Empty(t, store.ExtractEmail("a@x.com-T123"))
	assert.Empty(t, store.ExtractEmail("garbage"))
}
