package domain

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter bounds per-domain fetch rate with one token bucket per domain,
// keeping crawling polite and profile feedback causally meaningful.
type Limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
}

// NewLimiter creates a limiter allowing `perSecond` requests per domain
// with the given burst.
func NewLimiter(perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the domain's bucket allows another request or the
// context is done.
func (l *Limiter) Wait(ctx context.Context, domain string) error {
	l.mu.Lock()
	bucket, ok := l.buckets[domain]
	if !ok {
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets[domain] = bucket
	}
	l.mu.Unlock()
	return bucket.Wait(ctx)
}
