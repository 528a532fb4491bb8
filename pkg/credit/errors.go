package credit

import "errors"

var (
	ErrMissingUserID     = errors.New("credit allocation requires a user id")
	ErrNegativeAmount    = errors.New("credit allocation amount cannot be negative")
	ErrInvalidPeriod     = errors.New("credit allocation period end must be after start")
	ErrUnknownSource     = errors.New("unknown credit allocation source")
	ErrFailedToRecord    = errors.New("failed to record credit allocation")
	ErrFailedToQuery     = errors.New("failed to query credit ledger")
	ErrFailedToReadUsage = errors.New("failed to read consumed credits")
)
