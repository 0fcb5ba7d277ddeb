// Package store persists product records, enrichment sessions, and the
// shared domain-profile cache behind one interface with SQLite and
// Postgres implementations.
package store

import (
	"context"
	"time"

	"github.com/cellarworks/enrich-cli/internal/domain"
	"github.com/cellarworks/enrich-cli/internal/model"
)

// ProductFilter specifies criteria for listing products.
type ProductFilter struct {
	Category model.Category `json:"category,omitempty"`
	Status   model.Status   `json:"status,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	Offset   int            `json:"offset,omitempty"`
}

// SessionFilter specifies criteria for listing enrichment sessions.
type SessionFilter struct {
	Fingerprint string `json:"fingerprint,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the enrichment engine.
type Store interface {
	// Products. Records are keyed by fingerprint; saving an existing
	// fingerprint merges fields by confidence instead of duplicating.
	SaveProduct(ctx context.Context, rec *model.ProductRecord) (*model.ProductRecord, error)
	GetProduct(ctx context.Context, fingerprint string) (*model.ProductRecord, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]model.ProductRecord, error)

	// Sessions (audit trail).
	SaveSession(ctx context.Context, sess *model.EnrichmentSession) error
	GetSession(ctx context.Context, id string) (*model.EnrichmentSession, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.EnrichmentSession, error)

	// Domain-profile cache.
	GetProfile(ctx context.Context, domainName string) (*domain.DomainProfile, error)
	SetProfile(ctx context.Context, domainName string, p *domain.DomainProfile, ttl time.Duration) error
	DeleteExpiredProfiles(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
