package subscription

import "errors"

var (
	ErrNotFound            = errors.New("subscription not found")
	ErrMissingUserID       = errors.New("user id is required")
	ErrSubscriptionExists  = errors.New("user already has an active subscription")
	ErrInvalidTier         = errors.New("tier is unknown or not active")
	ErrInvalidDirection    = errors.New("tier change direction does not match the requested operation")
	ErrInvalidBillingCycle = errors.New("invalid billing cycle")
	ErrAlreadyCancelled    = errors.New("subscription is already cancelled")
	ErrNotCancelled        = errors.New("subscription is not cancelled")
	ErrPeriodNotElapsed    = errors.New("current billing period has not ended")
	ErrNotEntitled         = errors.New("subscription has no credit entitlement")
	ErrVersionConflict     = errors.New("subscription was modified concurrently")

	// ErrCreditAllocationFailed aborts the operation's success result even
	// though the tier mutation has already been persisted; callers must treat
	// "tier changed but credits failed" as a distinct, retryable state.
	ErrCreditAllocationFailed = errors.New("credit allocation failed")

	// ErrProrationRecordFailed is logged and swallowed: a missing monetary
	// record is reconcilable after the fact and must not block the credit
	// step.
	ErrProrationRecordFailed = errors.New("proration record failed")
)
