package tier

import (
	"context"
	"sync"
)

// Store serves tier catalog rows.
//
// Get returns the current row for a tier whether or not it is active, so
// existing subscriptions created under a since-retired tier can still resolve
// it; callers that require a sellable tier must check Config.Active. List
// returns active rows only.
type Store interface {
	Get(ctx context.Context, t Tier) (*Config, error)
	List(ctx context.Context) ([]Config, error)
}

// MemoryStore is an in-memory Store for tests and static catalogs.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[Tier]Config
}

// NewMemoryStore creates a MemoryStore seeded with the given configs.
func NewMemoryStore(configs ...Config) *MemoryStore {
	s := &MemoryStore{configs: make(map[Tier]Config, len(configs))}
	for _, c := range configs {
		s.configs[c.Tier] = c
	}
	return s
}

// Put inserts or replaces a tier config.
func (s *MemoryStore) Put(c Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[c.Tier] = c
}

func (s *MemoryStore) Get(_ context.Context, t Tier) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.configs[t]
	if !ok {
		return nil, ErrTierNotFound
	}
	return &c, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Config, 0, len(s.configs))
	for _, c := range s.configs {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}
