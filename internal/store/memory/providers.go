// Package memory keeps providers and proxy keys in process memory. It backs
// config-only deployments and tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/mixaill76/byok_router/internal/provider"
)

// ProviderStore implements provider.Store over a map guarded by a mutex.
type ProviderStore struct {
	mu        sync.RWMutex
	providers map[string]*provider.Provider
	order     []string
}

func NewProviderStore(providers []provider.Provider) *ProviderStore {
	s := &ProviderStore{providers: make(map[string]*provider.Provider, len(providers))}
	for _, p := range providers {
		s.Put(p)
	}
	return s
}

// Put adds or replaces a provider.
func (s *ProviderStore) Put(p provider.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.providers[p.ID]; !exists {
		s.order = append(s.order, p.ID)
	}
	s.providers[p.ID] = &p
}

func (s *ProviderStore) ListActiveForFailover(ctx context.Context, userID string) ([]provider.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []provider.Provider
	for _, id := range s.order {
		p := s.providers[id]
		if p.UserID == userID && p.IsActive {
			out = append(out, clone(p))
		}
	}
	slices.SortStableFunc(out, func(a, b provider.Provider) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	return out, nil
}

func (s *ProviderStore) UpdateHealth(ctx context.Context, id string, status provider.HealthStatus, failures uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[id]
	if !ok {
		return provider.ErrNotFound
	}
	p.HealthStatus = status
	p.ConsecutiveFailures = failures
	return nil
}

func (s *ProviderStore) MarkUsed(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[id]
	if !ok {
		return provider.ErrNotFound
	}
	p.LastUsedAt = &at
	return nil
}

// Get returns a copy of one provider.
func (s *ProviderStore) Get(id string) (provider.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return provider.Provider{}, provider.ErrNotFound
	}
	return clone(p), nil
}

// All returns copies of every provider in insertion order.
func (s *ProviderStore) All() []provider.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]provider.Provider, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, clone(s.providers[id]))
	}
	return out
}

func clone(p *provider.Provider) provider.Provider {
	c := *p
	if p.LastUsedAt != nil {
		at := *p.LastUsedAt
		c.LastUsedAt = &at
	}
	return c
}
