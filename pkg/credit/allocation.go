package credit

import (
	"time"

	"github.com/google/uuid"
)

// Source identifies where an allocation came from.
type Source string

const (
	SourceSubscription Source = "subscription"
	SourceBonus        Source = "bonus"
	SourceAdminGrant   Source = "admin_grant"
	SourceReferral     Source = "referral"
	SourceCoupon       Source = "coupon"
)

// Allocation is one append-only ledger entry granting credits to a user for
// a period. SubscriptionID is nil for grants that are not tied to a
// subscription (bonus, admin, referral, coupon).
type Allocation struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	SubscriptionID *uuid.UUID
	Amount         int64 // whole credits, never negative
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Source         Source
	CreatedAt      time.Time
}

// Validate checks the ledger's append invariants before a write.
func (a *Allocation) Validate() error {
	if a.UserID == uuid.Nil {
		return ErrMissingUserID
	}
	if a.Amount < 0 {
		return ErrNegativeAmount
	}
	if !a.PeriodEnd.After(a.PeriodStart) {
		return ErrInvalidPeriod
	}
	switch a.Source {
	case SourceSubscription, SourceBonus, SourceAdminGrant, SourceReferral, SourceCoupon:
		return nil
	default:
		return ErrUnknownSource
	}
}
