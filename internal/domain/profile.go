// Package domain holds per-domain fetch intelligence: learned behavior
// profiles, escalation heuristics, adaptive timeouts, tier selection, and
// the tiered router that ties them together.
package domain

import "time"

// Retrieval tiers, in increasing cost order.
const (
	TierPlain    = 1 // plain HTTP request
	TierHeadless = 2 // scripted/rendered browser
	TierProxy    = 3 // premium anti-block proxy
	NumTiers     = 3
)

// DomainProfile is the learned behavior summary for one internet domain.
// Created lazily with optimistic priors; mutated only by the Recorder;
// expires from the store after a retention window and is rebuilt from
// priors on the next fetch.
type DomainProfile struct {
	Domain string `json:"domain"`

	// TierSuccess holds the smoothed success rate per tier, indexed by
	// tier-1. Optimistic prior of 1.0 so unknown tiers are still tried.
	TierSuccess [NumTiers]float64 `json:"tier_success"`

	Successes     int `json:"successes"`
	Failures      int `json:"failures"`
	TimeoutCount  int `json:"timeout_count"`
	JSShellHits   int `json:"js_shell_hits"`
	ChallengeHits int `json:"challenge_hits"`

	LikelyJSHeavy      bool `json:"likely_js_heavy"`
	LikelyBotProtected bool `json:"likely_bot_protected"`
	LikelySlow         bool `json:"likely_slow"`

	RecommendedTier    int           `json:"recommended_tier"`
	RecommendedTimeout time.Duration `json:"recommended_timeout"`
	AvgLatency         time.Duration `json:"avg_latency"`

	// Manual overrides always win over learned behavior. Zero means unset.
	ManualTier    int           `json:"manual_tier,omitempty"`
	ManualTimeout time.Duration `json:"manual_timeout,omitempty"`

	// Tier3Since marks when the recommendation first escalated to tier 3,
	// so the classification can cool down instead of being permanent.
	Tier3Since    time.Time `json:"tier3_since,omitzero"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastSuccessAt time.Time `json:"last_success_at,omitzero"`
}

// NewProfile creates a profile with all-optimistic defaults.
func NewProfile(domain string) *DomainProfile {
	return &DomainProfile{
		Domain:          domain,
		TierSuccess:     [NumTiers]float64{1, 1, 1},
		RecommendedTier: TierPlain,
	}
}

// Observations returns the total number of recorded fetch outcomes.
func (p *DomainProfile) Observations() int { return p.Successes + p.Failures }

// Clamp enforces the profile invariants: rates in [0,1], tier in {1..3}.
func (p *DomainProfile) Clamp() {
	for i := range p.TierSuccess {
		if p.TierSuccess[i] < 0 {
			p.TierSuccess[i] = 0
		}
		if p.TierSuccess[i] > 1 {
			p.TierSuccess[i] = 1
		}
	}
	if p.RecommendedTier < TierPlain {
		p.RecommendedTier = TierPlain
	}
	if p.RecommendedTier > TierProxy {
		p.RecommendedTier = TierProxy
	}
}

// BestTier returns the tier with the highest observed success rate,
// preferring the cheaper tier on ties.
func (p *DomainProfile) BestTier() int {
	best := TierPlain
	for tier := TierPlain + 1; tier <= TierProxy; tier++ {
		if p.TierSuccess[tier-1] > p.TierSuccess[best-1] {
			best = tier
		}
	}
	return best
}
