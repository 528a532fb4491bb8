package subscription_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/credit"
	"github.com/dmitrymomot/billingkit/pkg/tier"
	"github.com/dmitrymomot/billingkit/svc/subscription"
)

var (
	periodStart = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = periodStart.AddDate(0, 0, 30)
	// Halfway through the 30-day period: 15 days remaining.
	midPeriod = periodStart.AddDate(0, 0, 15)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testCatalog() *tier.MemoryStore {
	return tier.NewMemoryStore(
		tier.Config{
			Tier:   tier.Free,
			Name:   "Free",
			Active: true,
		},
		tier.Config{
			Tier:           tier.Pro,
			Name:           "Pro",
			MonthlyPrice:   dec("29.99"),
			AnnualPrice:    dec("299.90"),
			MonthlyCredits: 50_000,
			TrialDays:      14,
			Features:       map[tier.Feature]bool{"api_access": true},
			Active:         true,
		},
		tier.Config{
			Tier:           tier.ProMax,
			Name:           "Pro Max",
			MonthlyPrice:   dec("59.99"),
			AnnualPrice:    dec("599.90"),
			MonthlyCredits: 100_000,
			TrialDays:      14,
			Features:       map[tier.Feature]bool{"api_access": true, "priority_support": true},
			Active:         true,
		},
		tier.Config{
			Tier:         tier.EnterprisePro,
			Name:         "Enterprise Pro (retired)",
			MonthlyPrice: dec("199.99"),
			Active:       false,
		},
	)
}

type fixture struct {
	subs   *subscription.MemoryStore
	events *subscription.MemoryEventStore
	tiers  *tier.MemoryStore
	ledger *credit.MemoryLedger
	now    time.Time
	svc    *subscription.Service
}

func newFixture(t *testing.T, usage credit.UsageSource, opts ...subscription.Option) *fixture {
	t.Helper()

	f := &fixture{
		subs:   subscription.NewMemoryStore(),
		events: subscription.NewMemoryEventStore(),
		tiers:  testCatalog(),
		ledger: credit.NewMemoryLedger(),
		now:    midPeriod,
	}
	if usage == nil {
		usage = credit.StaticUsage(0)
	}

	opts = append([]subscription.Option{
		subscription.WithClock(func() time.Time { return f.now }),
		subscription.WithLogger(slog.New(slog.DiscardHandler)),
	}, opts...)

	f.svc = subscription.NewService(f.subs, f.events, f.tiers, f.ledger, usage, opts...)
	return f
}

// seedActive inserts an active pro subscription halfway through its period.
func (f *fixture) seedActive(t *testing.T) *subscription.Subscription {
	t.Helper()

	sub := &subscription.Subscription{
		ID:                 uuid.New(),
		UserID:             uuid.New(),
		Tier:               tier.Pro,
		BillingCycle:       subscription.CycleMonthly,
		Status:             subscription.StatusActive,
		BasePrice:          dec("29.99"),
		MonthlyCredits:     50_000,
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
		CreatedAt:          periodStart,
		Version:            1,
	}
	require.NoError(t, f.subs.Create(context.Background(), sub))
	return sub
}

func TestCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("active paid subscription gets the full monthly allocation", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		userID := uuid.New()

		sub, err := f.svc.Create(ctx, subscription.CreateParams{
			UserID:       userID,
			Tier:         tier.Pro,
			BillingCycle: subscription.CycleMonthly,
		})
		require.NoError(t, err)

		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.True(t, sub.BasePrice.Equal(dec("29.99")))
		assert.Equal(t, int64(50_000), sub.MonthlyCredits)
		assert.Equal(t, f.now, sub.CurrentPeriodStart)
		assert.Equal(t, f.now.AddDate(0, 1, 0), sub.CurrentPeriodEnd)
		assert.Nil(t, sub.TrialEndsAt)

		allocs := f.ledger.All()
		require.Len(t, allocs, 1)
		assert.Equal(t, int64(50_000), allocs[0].Amount)
		assert.Equal(t, credit.SourceSubscription, allocs[0].Source)
		assert.Equal(t, sub.CurrentPeriodStart, allocs[0].PeriodStart)
		assert.Equal(t, sub.CurrentPeriodEnd, allocs[0].PeriodEnd)
		require.NotNil(t, allocs[0].SubscriptionID)
		assert.Equal(t, sub.ID, *allocs[0].SubscriptionID)
	})

	t.Run("annual cycle snapshots the annual price", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		sub, err := f.svc.Create(ctx, subscription.CreateParams{
			UserID:       uuid.New(),
			Tier:         tier.Pro,
			BillingCycle: subscription.CycleAnnual,
		})
		require.NoError(t, err)

		assert.True(t, sub.BasePrice.Equal(dec("299.90")))
		assert.Equal(t, f.now.AddDate(1, 0, 0), sub.CurrentPeriodEnd)
	})

	t.Run("trial starts with no credit allocation", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		sub, err := f.svc.Create(ctx, subscription.CreateParams{
			UserID:       uuid.New(),
			Tier:         tier.Pro,
			BillingCycle: subscription.CycleMonthly,
			StartTrial:   true,
		})
		require.NoError(t, err)

		assert.Equal(t, subscription.StatusTrial, sub.Status)
		require.NotNil(t, sub.TrialEndsAt)
		assert.Equal(t, f.now.AddDate(0, 0, 14), *sub.TrialEndsAt)
		assert.Empty(t, f.ledger.All(), "trials must not receive credits before conversion")
	})

	t.Run("explicit trial days override the tier default", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		sub, err := f.svc.Create(ctx, subscription.CreateParams{
			UserID:       uuid.New(),
			Tier:         tier.Pro,
			BillingCycle: subscription.CycleMonthly,
			StartTrial:   true,
			TrialDays:    7,
		})
		require.NoError(t, err)

		require.NotNil(t, sub.TrialEndsAt)
		assert.Equal(t, f.now.AddDate(0, 0, 7), *sub.TrialEndsAt)
	})

	t.Run("free tier has no trial and activates immediately", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		sub, err := f.svc.Create(ctx, subscription.CreateParams{
			UserID:       uuid.New(),
			Tier:         tier.Free,
			BillingCycle: subscription.CycleMonthly,
			StartTrial:   true,
		})
		require.NoError(t, err)

		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.Nil(t, sub.TrialEndsAt)
		assert.Empty(t, f.ledger.All(), "zero-allocation tier writes no ledger entry")
	})

	t.Run("second entitled subscription is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		userID := uuid.New()

		_, err := f.svc.Create(ctx, subscription.CreateParams{
			UserID:       userID,
			Tier:         tier.Pro,
			BillingCycle: subscription.CycleMonthly,
		})
		require.NoError(t, err)

		_, err = f.svc.Create(ctx, subscription.CreateParams{
			UserID:       userID,
			Tier:         tier.ProMax,
			BillingCycle: subscription.CycleMonthly,
		})
		assert.ErrorIs(t, err, subscription.ErrSubscriptionExists)
	})

	t.Run("unknown and retired tiers are invalid", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)

		_, err := f.svc.Create(ctx, subscription.CreateParams{
			UserID:       uuid.New(),
			Tier:         "gold_plus",
			BillingCycle: subscription.CycleMonthly,
		})
		assert.ErrorIs(t, err, subscription.ErrInvalidTier)

		_, err = f.svc.Create(ctx, subscription.CreateParams{
			UserID:       uuid.New(),
			Tier:         tier.EnterprisePro,
			BillingCycle: subscription.CycleMonthly,
		})
		assert.ErrorIs(t, err, subscription.ErrInvalidTier)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)

		_, err := f.svc.Create(ctx, subscription.CreateParams{
			Tier:         tier.Pro,
			BillingCycle: subscription.CycleMonthly,
		})
		assert.ErrorIs(t, err, subscription.ErrMissingUserID)

		_, err = f.svc.Create(ctx, subscription.CreateParams{
			UserID:       uuid.New(),
			Tier:         tier.Pro,
			BillingCycle: "weekly",
		})
		assert.ErrorIs(t, err, subscription.ErrInvalidBillingCycle)
	})
}

func TestUpgradeTier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("pro to pro_max halfway through the period", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		seeded := f.seedActive(t)

		sub, err := f.svc.UpgradeTier(ctx, seeded.ID, tier.ProMax)
		require.NoError(t, err)

		assert.Equal(t, tier.ProMax, sub.Tier)
		assert.True(t, sub.BasePrice.Equal(dec("59.99")))
		assert.Equal(t, int64(100_000), sub.MonthlyCredits)
		assert.Equal(t, periodStart, sub.CurrentPeriodStart, "billing clock must not restart")
		assert.Equal(t, periodEnd, sub.CurrentPeriodEnd)

		events := f.events.All()
		require.Len(t, events, 1)
		ev := events[0]
		assert.Equal(t, subscription.EventPending, ev.Status)
		assert.Equal(t, tier.Pro, ev.FromTier)
		assert.Equal(t, tier.ProMax, ev.ToTier)
		assert.Equal(t, tier.DirectionUpgrade, ev.ChangeType)
		assert.Equal(t, 15, ev.DaysRemaining)
		assert.Equal(t, 30, ev.DaysInCycle)
		assert.True(t, ev.UnusedCreditValue.Equal(dec("14.995")), "unused: %s", ev.UnusedCreditValue)
		assert.True(t, ev.NewProratedCost.Equal(dec("29.995")), "cost: %s", ev.NewProratedCost)
		assert.True(t, ev.NetCharge.Equal(dec("15.00")), "net: %s", ev.NetCharge)

		allocs := f.ledger.All()
		require.Len(t, allocs, 1)
		assert.Equal(t, int64(50_000), allocs[0].Amount, "half of the new 100k allocation")
		assert.Equal(t, midPeriod, allocs[0].PeriodStart, "covers the remainder of the period")
		assert.Equal(t, periodEnd, allocs[0].PeriodEnd)
		assert.Equal(t, credit.SourceSubscription, allocs[0].Source)
	})

	t.Run("downgrade request through upgrade is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		seeded := f.seedActive(t)

		_, err := f.svc.UpgradeTier(ctx, seeded.ID, tier.Free)
		assert.ErrorIs(t, err, subscription.ErrInvalidDirection)
		assert.Empty(t, f.events.All())
		assert.Empty(t, f.ledger.All())
	})

	t.Run("same tier is rejected, not silently ignored", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		seeded := f.seedActive(t)

		_, err := f.svc.UpgradeTier(ctx, seeded.ID, tier.Pro)
		assert.ErrorIs(t, err, subscription.ErrInvalidDirection)
	})

	t.Run("unknown subscription", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		_, err := f.svc.UpgradeTier(ctx, uuid.New(), tier.ProMax)
		assert.ErrorIs(t, err, subscription.ErrNotFound)
	})

	t.Run("retired target tier", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		seeded := f.seedActive(t)

		_, err := f.svc.UpgradeTier(ctx, seeded.ID, tier.EnterprisePro)
		assert.ErrorIs(t, err, subscription.ErrInvalidTier)
	})
}

func TestDowngradeTier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("overuse allocates the consumed amount", func(t *testing.T) {
		t.Parallel()

		// 40k consumed, downgrading to free (0 allocation): prorated
		// entitlement is 0, so the user is over by 40k.
		f := newFixture(t, credit.StaticUsage(40_000))
		seeded := f.seedActive(t)

		sub, err := f.svc.DowngradeTier(ctx, seeded.ID, tier.Free)
		require.NoError(t, err)

		assert.Equal(t, tier.Free, sub.Tier)
		assert.True(t, sub.BasePrice.IsZero())
		assert.Equal(t, int64(0), sub.MonthlyCredits)

		allocs := f.ledger.All()
		require.Len(t, allocs, 1)
		assert.Equal(t, int64(40_000), allocs[0].Amount,
			"allocation equals consumption so the remaining balance is exactly zero")

		events := f.events.All()
		require.Len(t, events, 1)
		assert.Equal(t, tier.DirectionDowngrade, events[0].ChangeType)
		assert.True(t, events[0].NetCharge.Equal(dec("-14.995")),
			"credit owed to the user: %s", events[0].NetCharge)
	})

	t.Run("no overuse allocates the prorated amount", func(t *testing.T) {
		t.Parallel()

		// pro_max -> pro halfway: prorated entitlement 25k, 10k consumed.
		f := newFixture(t, credit.StaticUsage(10_000))
		sub := &subscription.Subscription{
			ID:                 uuid.New(),
			UserID:             uuid.New(),
			Tier:               tier.ProMax,
			BillingCycle:       subscription.CycleMonthly,
			Status:             subscription.StatusActive,
			BasePrice:          dec("59.99"),
			MonthlyCredits:     100_000,
			CurrentPeriodStart: periodStart,
			CurrentPeriodEnd:   periodEnd,
			CreatedAt:          periodStart,
			Version:            1,
		}
		require.NoError(t, f.subs.Create(ctx, sub))

		_, err := f.svc.DowngradeTier(ctx, sub.ID, tier.Pro)
		require.NoError(t, err)

		allocs := f.ledger.All()
		require.Len(t, allocs, 1)
		assert.Equal(t, int64(25_000), allocs[0].Amount)
	})

	t.Run("at the period boundary skips the ledger write", func(t *testing.T) {
		t.Parallel()

		// No time remains, so there is no remainder entitlement to record,
		// even when the user has consumed credits. The tier change and the
		// monetary event must still land.
		f := newFixture(t, credit.StaticUsage(40_000))
		seeded := f.seedActive(t)
		f.now = periodEnd

		sub, err := f.svc.DowngradeTier(ctx, seeded.ID, tier.Free)
		require.NoError(t, err)

		assert.Equal(t, tier.Free, sub.Tier)
		assert.Empty(t, f.ledger.All())

		events := f.events.All()
		require.Len(t, events, 1)
		assert.Equal(t, 0, events[0].DaysRemaining)
		assert.True(t, events[0].NetCharge.IsZero())
	})

	t.Run("upgrade request through downgrade is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		seeded := f.seedActive(t)

		_, err := f.svc.DowngradeTier(ctx, seeded.ID, tier.ProMax)
		assert.ErrorIs(t, err, subscription.ErrInvalidDirection)
	})
}

// failingEventStore rejects every write.
type failingEventStore struct{}

func (failingEventStore) Record(context.Context, *subscription.ProrationEvent) error {
	return errors.New("event store down")
}

func (failingEventStore) ListBySubscription(context.Context, uuid.UUID) ([]subscription.ProrationEvent, error) {
	return nil, nil
}

func (failingEventStore) ListPending(context.Context, int) ([]subscription.ProrationEvent, error) {
	return nil, nil
}

// failingLedger rejects every write.
type failingLedger struct {
	*credit.MemoryLedger
}

func (failingLedger) Record(context.Context, *credit.Allocation) error {
	return errors.New("ledger down")
}

func TestChangeTierFailurePolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("monetary record failure does not block the credit step", func(t *testing.T) {
		t.Parallel()

		subs := subscription.NewMemoryStore()
		tiers := testCatalog()
		ledger := credit.NewMemoryLedger()
		now := midPeriod
		svc := subscription.NewService(subs, failingEventStore{}, tiers, ledger, credit.StaticUsage(0),
			subscription.WithClock(func() time.Time { return now }),
			subscription.WithLogger(slog.New(slog.DiscardHandler)))

		seeded := &subscription.Subscription{
			ID:                 uuid.New(),
			UserID:             uuid.New(),
			Tier:               tier.Pro,
			BillingCycle:       subscription.CycleMonthly,
			Status:             subscription.StatusActive,
			BasePrice:          dec("29.99"),
			MonthlyCredits:     50_000,
			CurrentPeriodStart: periodStart,
			CurrentPeriodEnd:   periodEnd,
			CreatedAt:          periodStart,
			Version:            1,
		}
		require.NoError(t, subs.Create(ctx, seeded))

		sub, err := svc.UpgradeTier(ctx, seeded.ID, tier.ProMax)
		require.NoError(t, err, "a lost monetary record is reconcilable and must not fail the upgrade")

		assert.Equal(t, tier.ProMax, sub.Tier)
		allocs := ledger.All()
		require.Len(t, allocs, 1)
		assert.Equal(t, int64(50_000), allocs[0].Amount)
	})

	t.Run("credit failure fails the operation with the tier already changed", func(t *testing.T) {
		t.Parallel()

		subs := subscription.NewMemoryStore()
		events := subscription.NewMemoryEventStore()
		tiers := testCatalog()
		now := midPeriod
		svc := subscription.NewService(subs, events, tiers,
			failingLedger{credit.NewMemoryLedger()}, credit.StaticUsage(0),
			subscription.WithClock(func() time.Time { return now }),
			subscription.WithLogger(slog.New(slog.DiscardHandler)))

		seeded := &subscription.Subscription{
			ID:                 uuid.New(),
			UserID:             uuid.New(),
			Tier:               tier.Pro,
			BillingCycle:       subscription.CycleMonthly,
			Status:             subscription.StatusActive,
			BasePrice:          dec("29.99"),
			MonthlyCredits:     50_000,
			CurrentPeriodStart: periodStart,
			CurrentPeriodEnd:   periodEnd,
			CreatedAt:          periodStart,
			Version:            1,
		}
		require.NoError(t, subs.Create(ctx, seeded))

		_, err := svc.UpgradeTier(ctx, seeded.ID, tier.ProMax)
		require.ErrorIs(t, err, subscription.ErrCreditAllocationFailed)

		// The asymmetry is intentional: the tier mutation is already
		// persisted and the caller retries the credit step.
		stored, getErr := subs.Get(ctx, seeded.ID)
		require.NoError(t, getErr)
		assert.Equal(t, tier.ProMax, stored.Tier)

		pending, _ := events.ListPending(ctx, 10)
		assert.Len(t, pending, 1, "the monetary record still lands")
	})
}

func TestCancelAndReactivate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("cancel at period end then reactivate leaves no trace", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		seeded := f.seedActive(t)

		cancelled, err := f.svc.CancelSubscription(ctx, seeded.ID, true)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, cancelled.Status,
			"soft-cancel keeps the entitlement until the period ends")
		require.NotNil(t, cancelled.CancelledAt)
		assert.Equal(t, midPeriod, *cancelled.CancelledAt)
		assert.True(t, cancelled.PendingCancellation())

		restored, err := f.svc.ReactivateSubscription(ctx, seeded.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, restored.Status)
		assert.Nil(t, restored.CancelledAt)

		assert.Empty(t, f.ledger.All(), "neither call may touch the credit ledger")
		assert.Empty(t, f.events.All())
	})

	t.Run("immediate cancel flips the status", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		seeded := f.seedActive(t)

		cancelled, err := f.svc.CancelSubscription(ctx, seeded.ID, false)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusCancelled, cancelled.Status)

		_, err = f.svc.CancelSubscription(ctx, seeded.ID, false)
		assert.ErrorIs(t, err, subscription.ErrAlreadyCancelled)
	})

	t.Run("reactivate after immediate cancel", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		seeded := f.seedActive(t)

		_, err := f.svc.CancelSubscription(ctx, seeded.ID, false)
		require.NoError(t, err)

		restored, err := f.svc.ReactivateSubscription(ctx, seeded.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, restored.Status)
	})

	t.Run("reactivating a live subscription is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		seeded := f.seedActive(t)

		_, err := f.svc.ReactivateSubscription(ctx, seeded.ID)
		assert.ErrorIs(t, err, subscription.ErrNotCancelled)
	})
}

func TestAllocateMonthlyCredits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("rolls the period and grants the full allocation", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		seeded := f.seedActive(t)
		f.now = periodEnd.Add(time.Hour)

		sub, err := f.svc.AllocateMonthlyCredits(ctx, seeded.ID)
		require.NoError(t, err)

		assert.Equal(t, periodEnd, sub.CurrentPeriodStart)
		assert.Equal(t, periodEnd.AddDate(0, 1, 0), sub.CurrentPeriodEnd)

		allocs := f.ledger.All()
		require.Len(t, allocs, 1)
		assert.Equal(t, int64(50_000), allocs[0].Amount)
		assert.Equal(t, periodEnd, allocs[0].PeriodStart)
	})

	t.Run("refuses before the period ends", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		seeded := f.seedActive(t)

		_, err := f.svc.AllocateMonthlyCredits(ctx, seeded.ID)
		assert.ErrorIs(t, err, subscription.ErrPeriodNotElapsed)
		assert.Empty(t, f.ledger.All())
	})

	t.Run("pending cancellation completes at the boundary", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		seeded := f.seedActive(t)

		_, err := f.svc.CancelSubscription(ctx, seeded.ID, true)
		require.NoError(t, err)

		f.now = periodEnd.Add(time.Hour)
		sub, err := f.svc.AllocateMonthlyCredits(ctx, seeded.ID)
		require.NoError(t, err)

		assert.Equal(t, subscription.StatusCancelled, sub.Status)
		assert.Empty(t, f.ledger.All(), "cancelled subscriptions receive no further credits")
	})
}

func TestQueries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("active subscription lookup", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		seeded := f.seedActive(t)

		sub, err := f.svc.GetActiveSubscription(ctx, seeded.UserID)
		require.NoError(t, err)
		assert.Equal(t, seeded.ID, sub.ID)

		_, err = f.svc.GetActiveSubscription(ctx, uuid.New())
		assert.ErrorIs(t, err, subscription.ErrNotFound)
	})

	t.Run("history survives cancellation", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		seeded := f.seedActive(t)

		_, err := f.svc.CancelSubscription(ctx, seeded.ID, false)
		require.NoError(t, err)

		history, err := f.svc.GetSubscriptionHistory(ctx, seeded.UserID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, subscription.StatusCancelled, history[0].Status)
	})

	t.Run("tier limits lookup", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)

		cfg, err := f.svc.GetTierLimits(ctx, tier.ProMax)
		require.NoError(t, err)
		assert.Equal(t, int64(100_000), cfg.MonthlyCredits)

		_, err = f.svc.GetTierLimits(ctx, "gold_plus")
		assert.ErrorIs(t, err, subscription.ErrNotFound)
	})

	t.Run("feature access fails closed", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		seeded := f.seedActive(t)

		assert.True(t, f.svc.CanAccessFeature(ctx, seeded.UserID, "api_access"))
		assert.False(t, f.svc.CanAccessFeature(ctx, seeded.UserID, "priority_support"))
		assert.False(t, f.svc.CanAccessFeature(ctx, uuid.New(), "api_access"),
			"no subscription means no features")

		_, err := f.svc.CancelSubscription(ctx, seeded.ID, false)
		require.NoError(t, err)
		assert.False(t, f.svc.CanAccessFeature(ctx, seeded.UserID, "api_access"),
			"cancelled subscriptions lose feature access")
	})
}

func TestMemoryStoreVersioning(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := subscription.NewMemoryStore()
	sub := &subscription.Subscription{
		ID:                 uuid.New(),
		UserID:             uuid.New(),
		Tier:               tier.Pro,
		BillingCycle:       subscription.CycleMonthly,
		Status:             subscription.StatusActive,
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
		Version:            1,
	}
	require.NoError(t, store.Create(ctx, sub))

	// First writer wins; the stale copy loses the race.
	first, err := store.Get(ctx, sub.ID)
	require.NoError(t, err)
	stale, err := store.Get(ctx, sub.ID)
	require.NoError(t, err)

	first.Tier = tier.ProMax
	require.NoError(t, store.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	stale.Tier = tier.EnterpriseMax
	assert.ErrorIs(t, store.Update(ctx, stale), subscription.ErrVersionConflict)
}
