package model

import "time"

// SessionBudget bounds one enrichment run. Zero values mean "no limit"
// is never assumed; budgets are always set from configuration.
type SessionBudget struct {
	MaxSearches int           `json:"max_searches"`
	MaxSources  int           `json:"max_sources"`
	MaxDuration time.Duration `json:"max_duration"`
}

// RejectedSource records a candidate URL that failed fetch or validation.
type RejectedSource struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// EnrichmentSession tracks one enrichment run for one product. The three
// source lists are append-only and become the audit trail persisted onto
// the product record at the end of the run.
type EnrichmentSession struct {
	ID      string          `json:"id"`
	Product ProductIdentity `json:"product"`
	Fields  FieldMap        `json:"fields"`

	Budget        SessionBudget `json:"budget"`
	SearchesUsed  int           `json:"searches_used"`
	SourcesUsed   int           `json:"sources_used"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at,omitzero"`
	ProducerStep  bool          `json:"producer_step_done"`
	SecondaryStep bool          `json:"secondary_step_done"`

	Searched []string         `json:"sources_searched"`
	Used     []string         `json:"sources_used_urls"`
	Rejected []RejectedSource `json:"sources_rejected"`

	Status Status  `json:"status"`
	Score  float64 `json:"completeness_score"`
	Stop   string  `json:"stop_reason,omitempty"`
}

// Elapsed returns the wall-clock time consumed so far.
func (s *EnrichmentSession) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}

// RecordSearched appends a URL to the searched list and spends one
// source against the budget. Every fetch attempt costs a source,
// accepted or not, so the budget bounds outbound fetches.
func (s *EnrichmentSession) RecordSearched(url string) {
	s.Searched = append(s.Searched, url)
	s.SourcesUsed++
}

// RecordUsed appends an accepted URL.
func (s *EnrichmentSession) RecordUsed(url string) {
	s.Used = append(s.Used, url)
}

// RecordRejected appends a rejected URL with its reason.
func (s *EnrichmentSession) RecordRejected(url, reason string) {
	s.Rejected = append(s.Rejected, RejectedSource{URL: url, Reason: reason})
}
