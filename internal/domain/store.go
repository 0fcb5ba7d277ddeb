package domain

import (
	"context"
	"sync"
	"time"
)

// ProfileStore persists domain profiles in a TTL-bound cache. Get never
// fails on a missing or expired entry; learning simply resets to priors.
// Update applies a mutation atomically so flag counters never lose
// increments under concurrent fetches to the same domain.
type ProfileStore interface {
	Get(ctx context.Context, domain string) (*DomainProfile, error)
	Update(ctx context.Context, domain string, fn func(*DomainProfile)) (*DomainProfile, error)
}

// MemoryProfileStore is the in-memory ProfileStore used by tests and
// single-process runs. A distributed cache backs production via the same
// narrow interface.
type MemoryProfileStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	profile   *DomainProfile
	expiresAt time.Time
}

// NewMemoryProfileStore creates a store whose entries expire after ttl.
func NewMemoryProfileStore(ttl time.Duration) *MemoryProfileStore {
	return &MemoryProfileStore{
		ttl:     ttl,
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (s *MemoryProfileStore) WithNow(now func() time.Time) *MemoryProfileStore {
	s.now = now
	return s
}

// Get returns the live profile for a domain, or a fresh optimistic
// profile when none exists or the entry has expired.
func (s *MemoryProfileStore) Get(_ context.Context, domain string) (*DomainProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(domain), nil
}

// Update atomically mutates the profile for a domain, creating it from
// priors first if needed, and refreshes the TTL.
func (s *MemoryProfileStore) Update(_ context.Context, domain string, fn func(*DomainProfile)) (*DomainProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.liveLocked(domain)
	fn(p)
	p.Clamp()
	p.UpdatedAt = s.now()
	s.entries[domain] = &memoryEntry{profile: p, expiresAt: s.now().Add(s.ttl)}

	out := *p
	return &out, nil
}

func (s *MemoryProfileStore) liveLocked(domain string) *DomainProfile {
	e, ok := s.entries[domain]
	if !ok || s.now().After(e.expiresAt) {
		delete(s.entries, domain)
		return NewProfile(domain)
	}
	cp := *e.profile
	e.profile = &cp
	return e.profile
}

// Sweep removes expired entries and returns how many were dropped.
func (s *MemoryProfileStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for domain, e := range s.entries {
		if s.now().After(e.expiresAt) {
			delete(s.entries, domain)
			n++
		}
	}
	return n
}
