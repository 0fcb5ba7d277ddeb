package domain

import "time"

// TierPolicy chooses the starting retrieval tier for a domain.
type TierPolicy struct {
	// MinSamples is the observation count needed before success-rate
	// history outranks the default cheapest-first choice.
	MinSamples int
	// Tier3Cooldown is how long a tier-3 classification holds before the
	// domain is retried one tier lower.
	Tier3Cooldown time.Duration
}

// DefaultTierPolicy returns the standard selector tuning.
func DefaultTierPolicy() TierPolicy {
	return TierPolicy{
		MinSamples:    5,
		Tier3Cooldown: 7 * 24 * time.Hour,
	}
}

// StartingTier picks the cheapest plausible tier for a domain. Manual
// override wins; unknown domains start at tier 1; bot-protected domains
// go straight to tier 3 (until the cooldown lapses); JS-heavy domains to
// tier 2; domains with enough history use their best observed tier.
func (tp TierPolicy) StartingTier(p *DomainProfile, now time.Time) int {
	if p == nil {
		return TierPlain
	}
	if p.ManualTier != 0 {
		return p.ManualTier
	}
	if p.Observations() == 0 {
		return TierPlain
	}
	if p.LikelyBotProtected {
		return tp.coolDown(p, now, TierProxy)
	}
	if p.LikelyJSHeavy {
		return TierHeadless
	}
	if p.Observations() >= tp.MinSamples {
		best := p.BestTier()
		if best == TierProxy {
			return tp.coolDown(p, now, best)
		}
		return best
	}
	return TierPlain
}

// coolDown demotes a tier-3 choice after the cooldown so classifications
// are not permanent.
func (tp TierPolicy) coolDown(p *DomainProfile, now time.Time, tier int) int {
	if tier != TierProxy || p.Tier3Since.IsZero() {
		return tier
	}
	if now.Sub(p.Tier3Since) >= tp.Tier3Cooldown {
		return TierHeadless
	}
	return tier
}
