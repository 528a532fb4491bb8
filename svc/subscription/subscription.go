package subscription

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/tier"
)

// BillingCycle is how often a subscription renews.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleAnnual  BillingCycle = "annual"
)

// IsValid reports whether the cycle is a known value.
func (c BillingCycle) IsValid() bool {
	return c == CycleMonthly || c == CycleAnnual
}

// AddTo advances t by one billing cycle.
func (c BillingCycle) AddTo(t time.Time) time.Time {
	if c == CycleAnnual {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

// Status is the subscription lifecycle state.
type Status string

const (
	StatusTrial       Status = "trial"
	StatusActive      Status = "active"
	StatusPastDue     Status = "past_due"
	StatusCancelled   Status = "cancelled"
	StatusExpired     Status = "expired"
	StatusSuspended   Status = "suspended"
	StatusGracePeriod Status = "grace_period"
)

// HasEntitlement reports whether the status grants usage credits. Only trial
// and active subscriptions are entitled; past_due, grace_period and the
// terminal states are not.
func (s Status) HasEntitlement() bool {
	return s == StatusTrial || s == StatusActive
}

// Subscription is one user's subscription record. BasePrice and
// MonthlyCredits are snapshots of the tier config taken at creation or at
// the last explicit tier change; later catalog edits never reprice an
// existing subscription.
type Subscription struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Tier           tier.Tier
	BillingCycle   BillingCycle
	Status         Status
	BasePrice      decimal.Decimal
	MonthlyCredits int64

	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialEndsAt        *time.Time
	CancelledAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version supports optimistic concurrency on mutation: Update only
	// applies when the stored version matches and increments it, so two
	// concurrent tier changes cannot both act on stale price state.
	Version int64
}

func (s *Subscription) IsTrialing() bool {
	return s.Status == StatusTrial
}

func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

func (s *Subscription) IsCancelled() bool {
	return s.Status == StatusCancelled
}

// HasEntitlement reports whether the subscription currently grants credits.
func (s *Subscription) HasEntitlement() bool {
	return s.Status.HasEntitlement()
}

// PendingCancellation reports a soft-cancel: the subscription keeps its
// entitlement until the period ends, but a cancellation has been requested.
func (s *Subscription) PendingCancellation() bool {
	return s.CancelledAt != nil && s.Status != StatusCancelled
}
