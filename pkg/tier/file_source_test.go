package tier_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/tier"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("loads a valid catalog", func(t *testing.T) {
		t.Parallel()

		path := writeCatalog(t, `
tiers:
  - tier: free
    name: Free
    monthly_credits: 1000
    active: true
  - tier: pro
    name: Pro
    monthly_price: "29.99"
    annual_price: "299.90"
    monthly_credits: 50000
    max_rollover: 10000
    trial_days: 14
    features:
      api_access: true
      priority_support: false
    active: true
`)

		store, err := tier.NewFileSource(path).Load(ctx)
		require.NoError(t, err)

		pro, err := store.Get(ctx, tier.Pro)
		require.NoError(t, err)
		assert.Equal(t, "Pro", pro.Name)
		assert.True(t, pro.MonthlyPrice.Equal(decimal.RequireFromString("29.99")))
		assert.Equal(t, int64(50_000), pro.MonthlyCredits)
		assert.Equal(t, 14, pro.TrialDays)
		assert.True(t, pro.HasFeature("api_access"))
		assert.False(t, pro.HasFeature("priority_support"))
		assert.False(t, pro.HasFeature("sso"))

		free, err := store.Get(ctx, tier.Free)
		require.NoError(t, err)
		assert.True(t, free.MonthlyPrice.IsZero())
	})

	t.Run("rejects duplicate tiers", func(t *testing.T) {
		t.Parallel()

		path := writeCatalog(t, `
tiers:
  - tier: pro
    active: true
  - tier: pro
    active: true
`)
		_, err := tier.NewFileSource(path).Load(ctx)
		assert.ErrorIs(t, err, tier.ErrInvalidCatalog)
	})

	t.Run("rejects malformed prices", func(t *testing.T) {
		t.Parallel()

		path := writeCatalog(t, `
tiers:
  - tier: pro
    monthly_price: "twenty"
    active: true
`)
		_, err := tier.NewFileSource(path).Load(ctx)
		assert.ErrorIs(t, err, tier.ErrInvalidCatalog)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := tier.NewFileSource(filepath.Join(t.TempDir(), "nope.yaml")).Load(ctx)
		assert.ErrorIs(t, err, tier.ErrFailedToLoadCatalog)
	})
}
