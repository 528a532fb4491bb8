package subscription

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists subscriptions. Records are never physically deleted;
// cancellation is a status and timestamp mutation so history stays
// reconstructable.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// GetActiveByUser returns the user's trial-or-active subscription.
	// Returns ErrNotFound when the user has none.
	GetActiveByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// ListByUser returns every subscription the user has ever had, oldest
	// first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Subscription, error)

	// Create persists a new subscription. Returns ErrSubscriptionExists when
	// the user already has a trial-or-active subscription and the new record
	// would be entitled too.
	Create(ctx context.Context, sub *Subscription) error

	// Update applies a mutation with an optimistic version check: the write
	// only lands when the stored version equals sub.Version, and increments
	// it. Returns ErrVersionConflict on a lost race.
	Update(ctx context.Context, sub *Subscription) error
}

// EventStore persists proration events. Written once by the engine; the
// billing collaborator drains pending events and advances their status.
type EventStore interface {
	Record(ctx context.Context, ev *ProrationEvent) error
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]ProrationEvent, error)
	ListPending(ctx context.Context, limit int) ([]ProrationEvent, error)
}

// Transactor scopes a lifecycle operation to a single persistence
// transaction. pg.Transactor implements it for Postgres; NopTransactor is
// for in-memory stores.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopTransactor runs the function directly with no transaction scope.
type NopTransactor struct{}

func (NopTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]Subscription
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[uuid.UUID]Subscription)}
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (s *MemoryStore) GetActiveByUser(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subs {
		if sub.UserID == userID && sub.HasEntitlement() {
			return &sub, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListByUser(_ context.Context, userID uuid.UUID) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Subscription
	for _, sub := range s.subs {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Mirrors the partial unique index the Postgres store relies on.
	if sub.HasEntitlement() {
		for _, existing := range s.subs {
			if existing.UserID == sub.UserID && existing.HasEntitlement() {
				return ErrSubscriptionExists
			}
		}
	}

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.Version == 0 {
		sub.Version = 1
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	sub.UpdatedAt = sub.CreatedAt
	s.subs[sub.ID] = *sub
	return nil
}

func (s *MemoryStore) Update(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.subs[sub.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != sub.Version {
		return ErrVersionConflict
	}

	sub.Version++
	s.subs[sub.ID] = *sub
	return nil
}

// MemoryEventStore is an in-memory EventStore for tests.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events []ProrationEvent
}

// NewMemoryEventStore creates an empty MemoryEventStore.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{}
}

func (s *MemoryEventStore) Record(_ context.Context, ev *ProrationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := *ev
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.UpdatedAt = entry.CreatedAt
	s.events = append(s.events, entry)
	ev.ID = entry.ID
	return nil
}

func (s *MemoryEventStore) ListBySubscription(_ context.Context, subscriptionID uuid.UUID) ([]ProrationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ProrationEvent
	for _, ev := range s.events {
		if ev.SubscriptionID == subscriptionID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *MemoryEventStore) ListPending(_ context.Context, limit int) ([]ProrationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ProrationEvent
	for _, ev := range s.events {
		if ev.Status == EventPending {
			out = append(out, ev)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// All returns a copy of every recorded event. Test helper.
func (s *MemoryEventStore) All() []ProrationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}
