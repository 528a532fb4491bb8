package subscription

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/tier"
)

// EventStatus tracks a proration event through the billing pipeline.
type EventStatus string

const (
	EventPending EventStatus = "pending"
	EventApplied EventStatus = "applied"
	EventFailed  EventStatus = "failed"
)

// ProrationEvent records the monetary outcome of one tier change attempt.
// The engine writes it once with status pending and correct numeric fields;
// the billing collaborator charges or credits the user asynchronously and
// advances the status. The engine never edits the record afterward.
//
// NetCharge is always NewProratedCost - UnusedCreditValue; a negative value
// means a credit is owed to the user (downgrade). The engine records it but
// never issues the refund itself.
type ProrationEvent struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	SubscriptionID uuid.UUID

	FromTier   tier.Tier
	ToTier     tier.Tier
	ChangeType tier.Direction

	DaysRemaining     int
	DaysInCycle       int
	UnusedCreditValue decimal.Decimal
	NewProratedCost   decimal.Decimal
	NetCharge         decimal.Decimal

	EffectiveAt time.Time
	Status      EventStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
