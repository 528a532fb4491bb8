package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/credit"
	"github.com/dmitrymomot/billingkit/pkg/proration"
	"github.com/dmitrymomot/billingkit/pkg/tier"
)

// Service is the subscription lifecycle engine. It validates tier
// transitions, persists subscription mutations, runs the monetary and credit
// proration calculators, and writes results through the credit ledger and
// the proration event store.
//
// Every operation runs inside the injected Transactor so the subscription
// mutation and the ledger writes land in one transaction, with one deliberate
// exception: a failed monetary proration record is logged and swallowed
// (reconcilable after the fact), while a failed credit allocation is
// propagated as the operation's failure even though the tier mutation has
// already been persisted. Credit entitlement must never silently fail to
// materialize.
type Service struct {
	subs   Store
	events EventStore
	tiers  tier.Store
	ledger credit.Ledger
	usage  credit.UsageSource
	tx     Transactor
	log    *slog.Logger
	now    func() time.Time
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithTransactor sets the transaction boundary implementation.
func WithTransactor(tx Transactor) Option {
	return func(s *Service) {
		if tx != nil {
			s.tx = tx
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock replaces the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the lifecycle engine. Panics on nil required
// dependencies to fail fast during initialization.
func NewService(subs Store, events EventStore, tiers tier.Store, ledger credit.Ledger, usage credit.UsageSource, opts ...Option) *Service {
	if subs == nil {
		panic("subscription: Store is required")
	}
	if events == nil {
		panic("subscription: EventStore is required")
	}
	if tiers == nil {
		panic("subscription: tier.Store is required")
	}
	if ledger == nil {
		panic("subscription: credit.Ledger is required")
	}
	if usage == nil {
		panic("subscription: credit.UsageSource is required")
	}

	s := &Service{
		subs:   subs,
		events: events,
		tiers:  tiers,
		ledger: ledger,
		usage:  usage,
		tx:     NopTransactor{},
		log:    slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateParams describes a new subscription.
type CreateParams struct {
	UserID       uuid.UUID
	Tier         tier.Tier
	BillingCycle BillingCycle
	StartTrial   bool
	TrialDays    int // overrides the tier's configured trial length when > 0
}

// Create opens a subscription for a user. The tier must exist and be active.
// Paid tiers can start in trial; trials receive no credit allocation until
// conversion, while immediately active subscriptions get the full monthly
// allocation for the opening period. A user can hold at most one
// trial-or-active subscription.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Subscription, error) {
	if p.UserID == uuid.Nil {
		return nil, ErrMissingUserID
	}
	if !p.BillingCycle.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBillingCycle, p.BillingCycle)
	}

	var sub *Subscription
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if existing, err := s.subs.GetActiveByUser(ctx, p.UserID); err == nil {
			return fmt.Errorf("%w: user %s already has subscription %s",
				ErrSubscriptionExists, p.UserID, existing.ID)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		cfg, err := s.sellableTier(ctx, p.Tier)
		if err != nil {
			return err
		}

		now := s.now()
		created := &Subscription{
			ID:                 uuid.New(),
			UserID:             p.UserID,
			Tier:               p.Tier,
			BillingCycle:       p.BillingCycle,
			Status:             StatusActive,
			BasePrice:          priceFor(cfg, p.BillingCycle),
			MonthlyCredits:     cfg.MonthlyCredits,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   p.BillingCycle.AddTo(now),
			CreatedAt:          now,
			UpdatedAt:          now,
			Version:            1,
		}

		// Free tiers have zero trial days, so a trial request on free falls
		// through to immediate activation.
		if p.StartTrial && p.Tier != tier.Free {
			trialDays := p.TrialDays
			if trialDays <= 0 {
				trialDays = cfg.TrialDays
			}
			if trialDays > 0 {
				trialEnd := now.AddDate(0, 0, trialDays)
				created.Status = StatusTrial
				created.TrialEndsAt = &trialEnd
			}
		}

		if err := s.subs.Create(ctx, created); err != nil {
			return err
		}

		// Trials get no allocation here; credits materialize when the trial
		// converts, which arrives as an external event.
		if created.Status == StatusActive && cfg.MonthlyCredits > 0 {
			if err := s.allocate(ctx, created, cfg.MonthlyCredits,
				created.CurrentPeriodStart, created.CurrentPeriodEnd); err != nil {
				return err
			}
		}

		sub = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "subscription created",
		"subscription_id", sub.ID,
		"user_id", sub.UserID,
		"tier", sub.Tier,
		"status", sub.Status,
		"billing_cycle", sub.BillingCycle)
	return sub, nil
}

// UpgradeTier moves a subscription to a higher tier effective immediately.
// The billing clock does not restart; a pending monetary proration event is
// recorded best-effort and the prorated credit entitlement for the remainder
// of the period is appended to the ledger.
func (s *Service) UpgradeTier(ctx context.Context, subscriptionID uuid.UUID, newTier tier.Tier) (*Subscription, error) {
	return s.changeTier(ctx, subscriptionID, newTier, tier.DirectionUpgrade)
}

// DowngradeTier moves a subscription to a lower tier effective immediately.
// In addition to the upgrade flow it runs overuse detection: when the user
// has already consumed more credits this period than the downgraded prorated
// entitlement, the allocation equals the consumed amount so the remaining
// balance lands at exactly zero, and the deficit is logged.
func (s *Service) DowngradeTier(ctx context.Context, subscriptionID uuid.UUID, newTier tier.Tier) (*Subscription, error) {
	return s.changeTier(ctx, subscriptionID, newTier, tier.DirectionDowngrade)
}

func (s *Service) changeTier(ctx context.Context, subscriptionID uuid.UUID, newTier tier.Tier, want tier.Direction) (*Subscription, error) {
	var (
		sub       *Subscription
		creditErr error
	)

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.subs.Get(ctx, subscriptionID)
		if err != nil {
			return fmt.Errorf("%w: subscription %s", err, subscriptionID)
		}

		direction := tier.Classify(current.Tier, newTier)
		if direction != want {
			return fmt.Errorf("%w: %s from %q to %q classified as %s",
				ErrInvalidDirection, want, current.Tier, newTier, direction)
		}

		newCfg, err := s.sellableTier(ctx, newTier)
		if err != nil {
			return err
		}

		now := s.now()
		oldTier := current.Tier
		oldPrice := current.BasePrice
		oldCredits := current.MonthlyCredits

		// Tier change takes effect immediately but the billing window stays.
		current.Tier = newTier
		current.BasePrice = priceFor(newCfg, current.BillingCycle)
		current.MonthlyCredits = newCfg.MonthlyCredits
		current.UpdatedAt = now
		if err := s.subs.Update(ctx, current); err != nil {
			return fmt.Errorf("%w: subscription %s", err, subscriptionID)
		}

		s.recordProrationEvent(ctx, current, oldTier, oldPrice, want, now)

		creditErr = s.allocateProratedCredits(ctx, current, oldCredits, want, now)

		sub = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	if creditErr != nil {
		return nil, creditErr
	}

	s.log.InfoContext(ctx, "tier changed",
		"subscription_id", sub.ID,
		"user_id", sub.UserID,
		"tier", sub.Tier,
		"direction", want)
	return sub, nil
}

// recordProrationEvent computes the monetary proration and persists a
// pending event for the billing collaborator. Best-effort: a failure is
// rolled back to its savepoint, logged with the full computation inputs, and
// swallowed so the credit step still runs.
func (s *Service) recordProrationEvent(ctx context.Context, sub *Subscription, fromTier tier.Tier, oldPrice decimal.Decimal, direction tier.Direction, now time.Time) {
	m := proration.Monetary(proration.MonetaryParams{
		OldPrice:    oldPrice,
		NewPrice:    sub.BasePrice,
		PeriodStart: sub.CurrentPeriodStart,
		PeriodEnd:   sub.CurrentPeriodEnd,
		Now:         now,
	})

	ev := &ProrationEvent{
		ID:                uuid.New(),
		UserID:            sub.UserID,
		SubscriptionID:    sub.ID,
		FromTier:          fromTier,
		ToTier:            sub.Tier,
		ChangeType:        direction,
		DaysRemaining:     m.DaysRemaining,
		DaysInCycle:       m.DaysInCycle,
		UnusedCreditValue: m.UnusedCreditValue,
		NewProratedCost:   m.NewProratedCost,
		NetCharge:         m.NetCharge,
		EffectiveAt:       now,
		Status:            EventPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.events.Record(ctx, ev)
	})
	if err != nil {
		// Reconciliation tooling keys off this log line; the numeric fields
		// reconstruct the event that failed to persist.
		s.log.ErrorContext(ctx, "proration record failed, continuing with credit allocation",
			"error", errors.Join(ErrProrationRecordFailed, err),
			"subscription_id", sub.ID,
			"user_id", sub.UserID,
			"from_tier", fromTier,
			"to_tier", sub.Tier,
			"days_remaining", m.DaysRemaining,
			"days_in_cycle", m.DaysInCycle,
			"unused_credit_value_usd", m.UnusedCreditValue.String(),
			"new_tier_prorated_cost_usd", m.NewProratedCost.String(),
			"net_charge_usd", m.NetCharge.String())
	}
}

// allocateProratedCredits appends the credit entitlement for the remainder
// of the period. The write runs in its own savepoint: on failure the ledger
// write is rolled back while the already-applied tier mutation commits, and
// the error is surfaced to the caller as the operation's failure.
func (s *Service) allocateProratedCredits(ctx context.Context, sub *Subscription, oldCredits int64, direction tier.Direction, now time.Time) error {
	// Nothing remains of the period at or past the boundary, so there is no
	// remainder entitlement to record; the next window is the rollover's job.
	if !now.Before(sub.CurrentPeriodEnd) {
		return nil
	}

	var used int64
	if direction == tier.DirectionDowngrade {
		var err error
		used, err = s.usage.ConsumedCredits(ctx, sub.UserID, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
		if err != nil {
			return s.creditFailure(ctx, sub, err, "failed to read consumed credits")
		}
	}

	res := proration.Credit(proration.CreditParams{
		OldAllocation: oldCredits,
		NewAllocation: sub.MonthlyCredits,
		UsedCredits:   used,
		PeriodStart:   sub.CurrentPeriodStart,
		PeriodEnd:     sub.CurrentPeriodEnd,
		Now:           now,
	})

	amount := res.ProratedCredits
	if direction == tier.DirectionDowngrade && res.Overuse {
		amount = res.AllocatableAmount(used)
		s.log.WarnContext(ctx, "downgrade overuse detected, allocating consumed amount",
			"subscription_id", sub.ID,
			"user_id", sub.UserID,
			"prorated_credits", res.ProratedCredits,
			"used_credits", used,
			"deficit", -res.RemainingAfter)
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.ledger.Record(ctx, &credit.Allocation{
			UserID:         sub.UserID,
			SubscriptionID: &sub.ID,
			Amount:         amount,
			PeriodStart:    now,
			PeriodEnd:      sub.CurrentPeriodEnd,
			Source:         credit.SourceSubscription,
			CreatedAt:      now,
		})
	})
	if err != nil {
		return s.creditFailure(ctx, sub, err, "credit allocation failed after tier mutation")
	}
	return nil
}

// creditFailure wraps and loudly logs a credit-step failure. The tier
// mutation has already been applied at this point, so the subscription and
// the ledger are inconsistent until the caller retries.
func (s *Service) creditFailure(ctx context.Context, sub *Subscription, err error, msg string) error {
	wrapped := fmt.Errorf("%w: subscription %s tier %s: %w", ErrCreditAllocationFailed, sub.ID, sub.Tier, err)
	s.log.ErrorContext(ctx, msg,
		"error", wrapped,
		"subscription_id", sub.ID,
		"user_id", sub.UserID,
		"tier", sub.Tier,
		"period_start", sub.CurrentPeriodStart,
		"period_end", sub.CurrentPeriodEnd,
		"retryable", true)
	return wrapped
}

// CancelSubscription cancels a subscription. With atPeriodEnd the status is
// left untouched and only the cancellation timestamp is stamped; entitlement
// runs until the period closes. An immediate cancel flips the status right
// away. Unused credits are forfeited by policy in both cases.
func (s *Service) CancelSubscription(ctx context.Context, subscriptionID uuid.UUID, atPeriodEnd bool) (*Subscription, error) {
	var sub *Subscription
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.subs.Get(ctx, subscriptionID)
		if err != nil {
			return fmt.Errorf("%w: subscription %s", err, subscriptionID)
		}
		if current.Status == StatusCancelled {
			return fmt.Errorf("%w: subscription %s", ErrAlreadyCancelled, subscriptionID)
		}

		now := s.now()
		current.CancelledAt = &now
		if !atPeriodEnd {
			current.Status = StatusCancelled
		}
		current.UpdatedAt = now

		if err := s.subs.Update(ctx, current); err != nil {
			return fmt.Errorf("%w: subscription %s", err, subscriptionID)
		}
		sub = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "subscription cancelled",
		"subscription_id", sub.ID,
		"user_id", sub.UserID,
		"at_period_end", atPeriodEnd,
		"status", sub.Status)
	return sub, nil
}

// ReactivateSubscription reverses a cancellation, restoring active status
// and clearing the cancellation timestamp. The existing period's allocation,
// if any, stands; no credits are re-allocated.
func (s *Service) ReactivateSubscription(ctx context.Context, subscriptionID uuid.UUID) (*Subscription, error) {
	var sub *Subscription
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.subs.Get(ctx, subscriptionID)
		if err != nil {
			return fmt.Errorf("%w: subscription %s", err, subscriptionID)
		}
		if current.Status != StatusCancelled && current.CancelledAt == nil {
			return fmt.Errorf("%w: subscription %s has status %s",
				ErrNotCancelled, subscriptionID, current.Status)
		}

		current.Status = StatusActive
		current.CancelledAt = nil
		current.UpdatedAt = s.now()

		if err := s.subs.Update(ctx, current); err != nil {
			return fmt.Errorf("%w: subscription %s", err, subscriptionID)
		}
		sub = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "subscription reactivated",
		"subscription_id", sub.ID,
		"user_id", sub.UserID)
	return sub, nil
}

// AllocateMonthlyCredits rolls the subscription into its next billing period
// and grants the full monthly allocation. Intended to be driven by the
// period-rollover scheduler once the current period has elapsed. A pending
// soft-cancel completes here: the subscription flips to cancelled at the
// period boundary and receives no further credits.
func (s *Service) AllocateMonthlyCredits(ctx context.Context, subscriptionID uuid.UUID) (*Subscription, error) {
	var sub *Subscription
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.subs.Get(ctx, subscriptionID)
		if err != nil {
			return fmt.Errorf("%w: subscription %s", err, subscriptionID)
		}

		now := s.now()
		if now.Before(current.CurrentPeriodEnd) {
			return fmt.Errorf("%w: subscription %s period ends %s",
				ErrPeriodNotElapsed, subscriptionID, current.CurrentPeriodEnd.Format(time.RFC3339))
		}

		if current.PendingCancellation() {
			current.Status = StatusCancelled
			current.UpdatedAt = now
			if err := s.subs.Update(ctx, current); err != nil {
				return fmt.Errorf("%w: subscription %s", err, subscriptionID)
			}
			sub = current
			return nil
		}

		if !current.HasEntitlement() {
			return fmt.Errorf("%w: subscription %s has status %s",
				ErrNotEntitled, subscriptionID, current.Status)
		}

		current.CurrentPeriodStart = current.CurrentPeriodEnd
		current.CurrentPeriodEnd = current.BillingCycle.AddTo(current.CurrentPeriodStart)
		current.UpdatedAt = now
		if err := s.subs.Update(ctx, current); err != nil {
			return fmt.Errorf("%w: subscription %s", err, subscriptionID)
		}

		if current.Status == StatusActive && current.MonthlyCredits > 0 {
			if err := s.allocate(ctx, current, current.MonthlyCredits,
				current.CurrentPeriodStart, current.CurrentPeriodEnd); err != nil {
				return err
			}
		}

		sub = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "monthly credits allocated",
		"subscription_id", sub.ID,
		"user_id", sub.UserID,
		"status", sub.Status,
		"period_start", sub.CurrentPeriodStart,
		"period_end", sub.CurrentPeriodEnd)
	return sub, nil
}

// GetActiveSubscription returns the user's trial-or-active subscription.
func (s *Service) GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	sub, err := s.subs.GetActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: user %s", err, userID)
	}
	return sub, nil
}

// GetSubscriptionHistory returns every subscription the user has ever had,
// oldest first. Cancellation never deletes records, so this reconstructs the
// full tier history.
func (s *Service) GetSubscriptionHistory(ctx context.Context, userID uuid.UUID) ([]Subscription, error) {
	return s.subs.ListByUser(ctx, userID)
}

// GetTierLimits returns the catalog config for a tier: credit allocation,
// rollover cap, and the feature map.
func (s *Service) GetTierLimits(ctx context.Context, t tier.Tier) (*tier.Config, error) {
	cfg, err := s.tiers.Get(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("%w: tier %q", ErrNotFound, t)
	}
	return cfg, nil
}

// CanAccessFeature reports whether the user's current subscription grants a
// feature. Fails closed: no entitled subscription, unknown tier, or a lookup
// error all return false.
func (s *Service) CanAccessFeature(ctx context.Context, userID uuid.UUID, feature tier.Feature) bool {
	sub, err := s.subs.GetActiveByUser(ctx, userID)
	if err != nil || !sub.HasEntitlement() {
		return false
	}

	cfg, err := s.tiers.Get(ctx, sub.Tier)
	if err != nil {
		return false
	}
	return cfg.HasFeature(feature)
}

// allocate appends a full-period subscription allocation to the ledger.
func (s *Service) allocate(ctx context.Context, sub *Subscription, amount int64, start, end time.Time) error {
	err := s.ledger.Record(ctx, &credit.Allocation{
		UserID:         sub.UserID,
		SubscriptionID: &sub.ID,
		Amount:         amount,
		PeriodStart:    start,
		PeriodEnd:      end,
		Source:         credit.SourceSubscription,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return fmt.Errorf("%w: subscription %s: %w", ErrCreditAllocationFailed, sub.ID, err)
	}
	return nil
}

// sellableTier fetches a tier config and requires it to be active. Unknown
// and retired tiers both surface as ErrInvalidTier, so a typo'd tier name is
// rejected here before level classification can missort it.
func (s *Service) sellableTier(ctx context.Context, t tier.Tier) (*tier.Config, error) {
	cfg, err := s.tiers.Get(ctx, t)
	if err != nil {
		if errors.Is(err, tier.ErrTierNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTier, t)
		}
		return nil, err
	}
	if !cfg.Active {
		return nil, fmt.Errorf("%w: %q is retired", ErrInvalidTier, t)
	}
	return cfg, nil
}

func priceFor(cfg *tier.Config, cycle BillingCycle) decimal.Decimal {
	if cycle == CycleAnnual {
		return cfg.AnnualPrice
	}
	return cfg.MonthlyPrice
}
