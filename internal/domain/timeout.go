package domain

import "time"

// TimeoutPolicy computes the timeout for a given attempt. Progressive
// doubling from a floor, capped at a ceiling, with a learned floor once
// a domain has enough successful observations.
type TimeoutPolicy struct {
	Base           time.Duration // floor for unknown domains
	Cap            time.Duration // hard ceiling, applied last
	MinSamples     int           // successes needed before AvgLatency overrides Base
	SlowMultiplier float64       // applied when the domain is flagged likely_slow
}

// DefaultTimeoutPolicy mirrors the tuning the fetch tiers are built for.
func DefaultTimeoutPolicy() TimeoutPolicy {
	return TimeoutPolicy{
		Base:           20 * time.Second,
		Cap:            60 * time.Second,
		MinSamples:     5,
		SlowMultiplier: 1.5,
	}
}

// TimeoutFor returns the timeout to use for the given zero-based attempt
// index. A manual override on the profile wins outright.
func (tp TimeoutPolicy) TimeoutFor(p *DomainProfile, attempt int) time.Duration {
	if p != nil && p.ManualTimeout > 0 {
		return p.ManualTimeout
	}
	if attempt < 0 {
		attempt = 0
	}

	base := tp.Base
	if p != nil && p.Successes >= tp.MinSamples && p.AvgLatency > 0 {
		// Learned response time replaces the static floor; doubling and
		// the cap still apply on top of it.
		base = p.AvgLatency
	}

	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= tp.Cap {
			d = tp.Cap
			break
		}
	}

	if p != nil && p.LikelySlow && tp.SlowMultiplier > 1 {
		d = time.Duration(float64(d) * tp.SlowMultiplier)
	}
	if d > tp.Cap {
		d = tp.Cap
	}
	return d
}
