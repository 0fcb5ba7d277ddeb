package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Category is the product category being enriched.
type Category string

const (
	CategoryWhiskey Category = "whiskey"
	CategoryPort    Category = "port"
)

// Status is the discrete completeness level of a product record.
// Levels are strictly ordered; each is a superset of the one before it.
type Status string

const (
	StatusRejected Status = "rejected"
	StatusSkeleton Status = "skeleton"
	StatusPartial  Status = "partial"
	StatusBaseline Status = "baseline"
	StatusEnriched Status = "enriched"
	StatusComplete Status = "complete"
)

var statusRank = map[Status]int{
	StatusRejected: 0,
	StatusSkeleton: 1,
	StatusPartial:  2,
	StatusBaseline: 3,
	StatusEnriched: 4,
	StatusComplete: 5,
}

// Rank returns the ordinal position of the status in the ladder.
func (s Status) Rank() int { return statusRank[s] }

// AtLeast reports whether s is at or above the given level.
func (s Status) AtLeast(other Status) bool { return s.Rank() >= other.Rank() }

// ProductIdentity is the stable identity snapshot of a product, used by
// the match validator and carried on sessions.
type ProductIdentity struct {
	Name        string   `json:"name"`
	Brand       string   `json:"brand,omitempty"`
	Category    Category `json:"category"`
	Fingerprint string   `json:"fingerprint"`
}

// ProductRecord is the entity being built. Records are never deleted:
// duplicates merge into the existing record via the shared fingerprint.
type ProductRecord struct {
	Fingerprint string            `json:"fingerprint"`
	Name        string            `json:"name"`
	Brand       string            `json:"brand,omitempty"`
	Category    Category          `json:"category"`
	Fields      FieldMap          `json:"fields"`
	Status      Status            `json:"status"`
	Provenance  map[string]string `json:"provenance,omitempty"` // field key -> URL that last set it
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Identity returns the record's identity snapshot.
func (p *ProductRecord) Identity() ProductIdentity {
	return ProductIdentity{
		Name:        p.Name,
		Brand:       p.Brand,
		Category:    p.Category,
		Fingerprint: p.Fingerprint,
	}
}

var foldTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// FoldText lowercases and strips diacritics, so "Quinta do Côtto" and
// "quinta do cotto" normalize identically. Port producer names routinely
// carry Portuguese diacritics that retail listings drop.
func FoldText(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// Fingerprint derives the stable dedup identifier for a product from its
// identity fields. Same bottle, differently formatted listings, same key.
func Fingerprint(name, brand string, category Category) string {
	var b strings.Builder
	for _, part := range []string{FoldText(name), FoldText(brand), string(category)} {
		for _, r := range part {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
		b.WriteByte('|')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}
