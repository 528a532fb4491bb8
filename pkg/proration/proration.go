package proration

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonetaryParams describes a mid-cycle price change to prorate.
type MonetaryParams struct {
	OldPrice    decimal.Decimal // old tier price at the subscription's billing cycle
	NewPrice    decimal.Decimal // new tier price at the same billing cycle
	PeriodStart time.Time
	PeriodEnd   time.Time
	Now         time.Time
}

// MonetaryResult is the monetary breakdown of a tier change.
// NetCharge is negative when the user is owed a credit (downgrade).
type MonetaryResult struct {
	DaysRemaining     int
	DaysInCycle       int
	UnusedCreditValue decimal.Decimal
	NewProratedCost   decimal.Decimal
	NetCharge         decimal.Decimal
}

// CreditParams describes a credit-entitlement change for the rest of a period.
type CreditParams struct {
	OldAllocation int64 // old tier's monthly credit allocation
	NewAllocation int64 // new tier's monthly credit allocation
	UsedCredits   int64 // credits consumed so far this period
	PeriodStart   time.Time
	PeriodEnd     time.Time
	Now           time.Time
}

// CreditResult is the credit-entitlement breakdown of a tier change.
type CreditResult struct {
	DaysRemaining   int
	DaysInCycle     int
	ProratedCredits int64 // prorated entitlement under the new allocation
	RemainingAfter  int64 // ProratedCredits - UsedCredits, may be negative
	Overuse         bool  // consumption already exceeds the prorated entitlement
}

// AllocatableAmount returns the number of credits to append to the ledger for
// the remainder of the period. On overuse the already-consumed amount is
// allocated instead, so the available balance lands at exactly zero rather
// than going negative. The ledger is append-only and never stores a negative
// allocation.
func (r CreditResult) AllocatableAmount(usedCredits int64) int64 {
	if r.Overuse {
		return usedCredits
	}
	return r.ProratedCredits
}

// Monetary computes the charge or credit owed for switching prices mid-cycle.
//
//	unusedCreditValue = (daysRemaining / daysInCycle) * oldPrice
//	newProratedCost   = (daysRemaining / daysInCycle) * newPrice
//	netCharge         = newProratedCost - unusedCreditValue
//
// A zero-length cycle yields a zero ratio rather than propagating a division
// error into stored currency fields.
func Monetary(p MonetaryParams) MonetaryResult {
	daysRemaining, daysInCycle := periodDays(p.PeriodStart, p.PeriodEnd, p.Now)

	ratio := cycleRatio(daysRemaining, daysInCycle)
	unused := ratio.Mul(p.OldPrice)
	cost := ratio.Mul(p.NewPrice)

	return MonetaryResult{
		DaysRemaining:     daysRemaining,
		DaysInCycle:       daysInCycle,
		UnusedCreditValue: unused,
		NewProratedCost:   cost,
		NetCharge:         cost.Sub(unused),
	}
}

// Credit computes the prorated credit entitlement for the remainder of the
// period and flags overuse. Credits are integers; the prorated amount is
// rounded half-up so ledger invariant checks stay deterministic.
func Credit(p CreditParams) CreditResult {
	daysRemaining, daysInCycle := periodDays(p.PeriodStart, p.PeriodEnd, p.Now)

	prorated := cycleRatio(daysRemaining, daysInCycle).
		Mul(decimal.NewFromInt(p.NewAllocation)).
		Round(0).
		IntPart()

	remaining := prorated - p.UsedCredits

	return CreditResult{
		DaysRemaining:   daysRemaining,
		DaysInCycle:     daysInCycle,
		ProratedCredits: prorated,
		RemainingAfter:  remaining,
		Overuse:         remaining < 0,
	}
}

// periodDays returns whole days remaining (floored at zero) and whole days in
// the cycle. Partial days are truncated.
func periodDays(start, end, now time.Time) (remaining, inCycle int) {
	inCycle = int(end.Sub(start).Hours() / 24)

	remaining = int(end.Sub(now).Hours() / 24)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > inCycle {
		remaining = inCycle
	}
	return remaining, inCycle
}

func cycleRatio(daysRemaining, daysInCycle int) decimal.Decimal {
	if daysInCycle <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(daysRemaining)).
		Div(decimal.NewFromInt(int64(daysInCycle)))
}
