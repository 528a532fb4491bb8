package tier

import (
	"context"
	"sync"
	"time"
)

// CachedStore wraps a Store with a TTL cache. It is an explicit component
// with an injected clock rather than a module-level singleton: the admin
// write path calls Invalidate or Refresh after mutating the catalog, and
// tests drive expiry by swapping the clock.
type CachedStore struct {
	inner Store
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	entries map[Tier]cacheEntry
}

type cacheEntry struct {
	config    Config
	fetchedAt time.Time
}

// CachedStoreOption configures a CachedStore.
type CachedStoreOption func(*CachedStore)

// WithClock replaces the time source used for TTL checks.
func WithClock(now func() time.Time) CachedStoreOption {
	return func(s *CachedStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewCachedStore wraps inner with a TTL cache. A non-positive ttl disables
// expiry so entries live until explicitly invalidated.
func NewCachedStore(inner Store, ttl time.Duration, opts ...CachedStoreOption) *CachedStore {
	if inner == nil {
		panic("tier: inner store is required")
	}
	s := &CachedStore{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[Tier]cacheEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CachedStore) Get(ctx context.Context, t Tier) (*Config, error) {
	s.mu.RLock()
	entry, ok := s.entries[t]
	s.mu.RUnlock()

	if ok && !s.expired(entry) {
		c := entry.config
		return &c, nil
	}

	c, err := s.inner.Get(ctx, t)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.entries[t] = cacheEntry{config: *c, fetchedAt: s.now()}
	s.mu.Unlock()

	return c, nil
}

// List always hits the inner store: listings are an admin/signup concern and
// must not serve a partially warmed cache.
func (s *CachedStore) List(ctx context.Context) ([]Config, error) {
	return s.inner.List(ctx)
}

// Invalidate drops cached entries for the given tiers, or the whole cache
// when called with no arguments. The admin write path calls this after any
// catalog mutation.
func (s *CachedStore) Invalidate(tiers ...Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(tiers) == 0 {
		s.entries = make(map[Tier]cacheEntry)
		return
	}
	for _, t := range tiers {
		delete(s.entries, t)
	}
}

// Refresh repopulates the cache from the inner store's active catalog in one
// round trip, replacing whatever was cached before.
func (s *CachedStore) Refresh(ctx context.Context) error {
	configs, err := s.inner.List(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	entries := make(map[Tier]cacheEntry, len(configs))
	for _, c := range configs {
		entries[c.Tier] = cacheEntry{config: c, fetchedAt: now}
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

func (s *CachedStore) expired(e cacheEntry) bool {
	if s.ttl <= 0 {
		return false
	}
	return s.now().Sub(e.fetchedAt) >= s.ttl
}
