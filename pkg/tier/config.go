package tier

import (
	"time"

	"github.com/shopspring/decimal"
)

// Feature is a plan capability key, e.g. "api_access" or "priority_support".
type Feature string

// Config is a catalog row for a single tier. Prices are USD; credit amounts
// are whole credits. The feature map is typed here and serialized to a JSON
// blob only at the persistence edge.
type Config struct {
	Tier           Tier
	Name           string
	MonthlyPrice   decimal.Decimal
	AnnualPrice    decimal.Decimal
	MonthlyCredits int64
	MaxRollover    int64
	TrialDays      int
	Features       map[Feature]bool
	Active         bool
}

// HasFeature reports whether the tier grants a feature. Missing keys are
// treated as disabled.
func (c Config) HasFeature(f Feature) bool {
	return c.Features[f]
}

// TrialEndsAt returns when a trial started at the given time ends.
// Tiers without a trial (the free tier in particular) return startedAt
// unchanged.
func (c Config) TrialEndsAt(startedAt time.Time) time.Time {
	if c.TrialDays <= 0 {
		return startedAt
	}
	return startedAt.AddDate(0, 0, c.TrialDays)
}
