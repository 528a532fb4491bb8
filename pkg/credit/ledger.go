package credit

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ledger persists credit allocations. Record appends; nothing updates or
// deletes an entry once written.
type Ledger interface {
	Record(ctx context.Context, a *Allocation) error

	// AllocatedInPeriod sums allocations for a user whose period overlaps
	// [start, end).
	AllocatedInPeriod(ctx context.Context, userID uuid.UUID, start, end time.Time) (int64, error)

	ListByUser(ctx context.Context, userID uuid.UUID) ([]Allocation, error)
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]Allocation, error)
}

// Balance derives the available credits for a user in a period: allocations
// recorded in the ledger minus consumption read from the usage collaborator.
func Balance(ctx context.Context, ledger Ledger, usage UsageSource, userID uuid.UUID, start, end time.Time) (int64, error) {
	allocated, err := ledger.AllocatedInPeriod(ctx, userID, start, end)
	if err != nil {
		return 0, err
	}
	consumed, err := usage.ConsumedCredits(ctx, userID, start, end)
	if err != nil {
		return 0, err
	}
	return allocated - consumed, nil
}

// MemoryLedger is an in-memory Ledger for tests.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []Allocation
}

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) Record(_ context.Context, a *Allocation) error {
	if err := a.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := *a
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	l.entries = append(l.entries, entry)
	a.ID = entry.ID
	a.CreatedAt = entry.CreatedAt
	return nil
}

func (l *MemoryLedger) AllocatedInPeriod(_ context.Context, userID uuid.UUID, start, end time.Time) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var sum int64
	for _, e := range l.entries {
		if e.UserID == userID && e.PeriodStart.Before(end) && e.PeriodEnd.After(start) {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (l *MemoryLedger) ListByUser(_ context.Context, userID uuid.UUID) ([]Allocation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Allocation
	for _, e := range l.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *MemoryLedger) ListBySubscription(_ context.Context, subscriptionID uuid.UUID) ([]Allocation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Allocation
	for _, e := range l.entries {
		if e.SubscriptionID != nil && *e.SubscriptionID == subscriptionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns a copy of every entry, newest last. Test helper.
func (l *MemoryLedger) All() []Allocation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.entries)
}
