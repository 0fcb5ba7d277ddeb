package domain

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Recorder folds fetch outcomes back into domain profiles. Smoothed
// scalars use a fixed-alpha exponential moving average; flag counters
// increment atomically through the store's Update.
type Recorder struct {
	store ProfileStore

	// Alpha is the EMA weight given to the newest observation.
	Alpha float64
	// Flags flip only after this many corroborating observations.
	JSHeavyAfter      int
	BotProtectedAfter int
	SlowAfter         int

	now func() time.Time
}

// NewRecorder creates a Recorder with the standard smoothing and flag
// thresholds.
func NewRecorder(store ProfileStore) *Recorder {
	return &Recorder{
		store:             store,
		Alpha:             0.3,
		JSHeavyAfter:      2,
		BotProtectedAfter: 2,
		SlowAfter:         3,
		now:               time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (r *Recorder) WithNow(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Record updates the profile for one fetch outcome and returns the
// updated snapshot. Recording never fails the fetch path; store errors
// are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, domain string, tier int, success bool, latency time.Duration, reason Reason) *DomainProfile {
	if tier < TierPlain || tier > TierProxy {
		return nil
	}
	updated, err := r.store.Update(ctx, domain, func(p *DomainProfile) {
		obs := 0.0
		if success {
			obs = 1.0
		}
		p.TierSuccess[tier-1] = r.Alpha*obs + (1-r.Alpha)*p.TierSuccess[tier-1]

		if success {
			p.Successes++
			p.LastSuccessAt = r.now()
			if latency > 0 {
				if p.AvgLatency == 0 {
					p.AvgLatency = latency
				} else {
					p.AvgLatency = time.Duration(r.Alpha*float64(latency) + (1-r.Alpha)*float64(p.AvgLatency))
				}
			}
		} else {
			p.Failures++
			switch reason {
			case ReasonJSShell, ReasonEnableJS:
				p.JSShellHits++
				if p.JSShellHits >= r.JSHeavyAfter {
					p.LikelyJSHeavy = true
				}
			case ReasonBotChallenge, ReasonCaptcha, ReasonHTTPDenied, ReasonRateLimited:
				p.ChallengeHits++
				if p.ChallengeHits >= r.BotProtectedAfter {
					p.LikelyBotProtected = true
				}
			case ReasonTimeout:
				p.TimeoutCount++
				if p.TimeoutCount >= r.SlowAfter {
					p.LikelySlow = true
				}
			}
		}

		r.recompute(p)
	})
	if err != nil {
		zap.L().Warn("feedback: profile update failed",
			zap.String("domain", domain),
			zap.Error(err),
		)
		return nil
	}
	return updated
}

// recompute refreshes the derived recommendation fields.
func (r *Recorder) recompute(p *DomainProfile) {
	switch {
	case p.LikelyBotProtected:
		p.RecommendedTier = TierProxy
	case p.LikelyJSHeavy:
		p.RecommendedTier = TierHeadless
	default:
		p.RecommendedTier = p.BestTier()
	}

	if p.RecommendedTier == TierProxy {
		if p.Tier3Since.IsZero() {
			p.Tier3Since = r.now()
		}
	} else {
		p.Tier3Since = time.Time{}
	}

	if p.AvgLatency > 0 {
		p.RecommendedTimeout = 2 * p.AvgLatency
	}
}
