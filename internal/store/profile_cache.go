package store

import (
	"context"
	"sync"
	"time"

	"github.com/cellarworks/enrich-cli/internal/domain"
)

// ProfileCache adapts a Store to the fetcher's profile interface so
// domain learning survives process restarts. A missing or expired row
// rebuilds from optimistic priors, never errors.
type ProfileCache struct {
	store Store
	ttl   time.Duration

	// Serializes read-modify-write cycles within this process so flag
	// counters do not lose increments. Cross-process races only cost
	// smoothed statistics, which the learning model tolerates.
	mu sync.Mutex
}

var _ domain.ProfileStore = (*ProfileCache)(nil)

func NewProfileCache(s Store, ttl time.Duration) *ProfileCache {
	return &ProfileCache{store: s, ttl: ttl}
}

func (c *ProfileCache) Get(ctx context.Context, domainName string) (*domain.DomainProfile, error) {
	p, err := c.store.GetProfile(ctx, domainName)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return domain.NewProfile(domainName), nil
	}
	return p, nil
}

func (c *ProfileCache) Update(ctx context.Context, domainName string, fn func(*domain.DomainProfile)) (*domain.DomainProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.Get(ctx, domainName)
	if err != nil {
		return nil, err
	}
	fn(p)
	p.Clamp()
	if err := c.store.SetProfile(ctx, domainName, p, c.ttl); err != nil {
		return nil, err
	}
	return p, nil
}
