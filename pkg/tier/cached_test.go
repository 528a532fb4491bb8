package tier_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/tier"
)

// countingStore wraps a MemoryStore and counts Get round trips.
type countingStore struct {
	*tier.MemoryStore
	mu   sync.Mutex
	gets int
}

func (s *countingStore) Get(ctx context.Context, t tier.Tier) (*tier.Config, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.MemoryStore.Get(ctx, t)
}

func (s *countingStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func proConfig() tier.Config {
	return tier.Config{
		Tier:           tier.Pro,
		Name:           "Pro",
		MonthlyPrice:   decimal.RequireFromString("29.99"),
		AnnualPrice:    decimal.RequireFromString("299.90"),
		MonthlyCredits: 50_000,
		TrialDays:      14,
		Active:         true,
	}
}

func TestCachedStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("serves from cache within ttl", func(t *testing.T) {
		t.Parallel()

		inner := &countingStore{MemoryStore: tier.NewMemoryStore(proConfig())}
		cached := tier.NewCachedStore(inner, time.Minute)

		for range 5 {
			cfg, err := cached.Get(ctx, tier.Pro)
			require.NoError(t, err)
			assert.Equal(t, tier.Pro, cfg.Tier)
		}
		assert.Equal(t, 1, inner.getCount())
	})

	t.Run("expires via injected clock", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		inner := &countingStore{MemoryStore: tier.NewMemoryStore(proConfig())}
		cached := tier.NewCachedStore(inner, time.Minute,
			tier.WithClock(func() time.Time { return now }))

		_, err := cached.Get(ctx, tier.Pro)
		require.NoError(t, err)

		now = now.Add(30 * time.Second)
		_, err = cached.Get(ctx, tier.Pro)
		require.NoError(t, err)
		assert.Equal(t, 1, inner.getCount(), "entry still fresh")

		now = now.Add(31 * time.Second)
		_, err = cached.Get(ctx, tier.Pro)
		require.NoError(t, err)
		assert.Equal(t, 2, inner.getCount(), "entry expired, refetched")
	})

	t.Run("invalidate forces a refetch", func(t *testing.T) {
		t.Parallel()

		inner := &countingStore{MemoryStore: tier.NewMemoryStore(proConfig())}
		cached := tier.NewCachedStore(inner, time.Hour)

		_, err := cached.Get(ctx, tier.Pro)
		require.NoError(t, err)

		// Admin write path: reprice, then invalidate.
		updated := proConfig()
		updated.MonthlyPrice = decimal.RequireFromString("39.99")
		inner.Put(updated)
		cached.Invalidate(tier.Pro)

		cfg, err := cached.Get(ctx, tier.Pro)
		require.NoError(t, err)
		assert.True(t, cfg.MonthlyPrice.Equal(decimal.RequireFromString("39.99")))
		assert.Equal(t, 2, inner.getCount())
	})

	t.Run("refresh repopulates from the catalog", func(t *testing.T) {
		t.Parallel()

		inner := &countingStore{MemoryStore: tier.NewMemoryStore(proConfig())}
		cached := tier.NewCachedStore(inner, time.Hour)

		require.NoError(t, cached.Refresh(ctx))

		_, err := cached.Get(ctx, tier.Pro)
		require.NoError(t, err)
		assert.Equal(t, 0, inner.getCount(), "refresh warmed the cache in one List call")
	})

	t.Run("misses pass through errors", func(t *testing.T) {
		t.Parallel()

		inner := &countingStore{MemoryStore: tier.NewMemoryStore()}
		cached := tier.NewCachedStore(inner, time.Minute)

		_, err := cached.Get(ctx, tier.Perpetual)
		assert.ErrorIs(t, err, tier.ErrTierNotFound)
	})
}
