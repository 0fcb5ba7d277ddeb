package domain

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cellarworks/enrich-cli/internal/metrics"
)

// FetchResult is the outcome of one successful routed fetch.
type FetchResult struct {
	Content    string        `json:"content"`
	Title      string        `json:"title,omitempty"`
	StatusCode int           `json:"status_code"`
	Tier       int           `json:"tier"`
	Latency    time.Duration `json:"latency"`
}

// Attempt records one tier attempt for exhaustion diagnostics.
type Attempt struct {
	Tier       int           `json:"tier"`
	StatusCode int           `json:"status_code,omitempty"`
	Reason     Reason        `json:"reason"`
	Latency    time.Duration `json:"latency"`
	Err        string        `json:"error,omitempty"`
}

// ExhaustedError is returned when every tier failed. The caller gets the
// full attempt history and must never substitute a soft-failure body as
// valid content.
type ExhaustedError struct {
	URL      string
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	reasons := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		reasons = append(reasons, fmt.Sprintf("tier%d:%s", a.Tier, a.Reason))
	}
	return fmt.Sprintf("router: all tiers exhausted for %s (%s)", e.URL, strings.Join(reasons, ", "))
}

// IsExhausted reports whether err is a tier-exhaustion failure and
// returns the typed error.
func IsExhausted(err error) (*ExhaustedError, bool) {
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		return ex, true
	}
	return nil, false
}

// TierFetcher is one retrieval strategy in the ladder.
type TierFetcher interface {
	Tier() int
	Fetch(ctx context.Context, rawURL string, timeout time.Duration) (string, string, int, error) // content, title, status
}

// Router escalates a single URL across tiers 1→3, consulting the domain
// profile for where to start and how long to wait, and recording every
// outcome for future runs.
type Router struct {
	fetchers   map[int]TierFetcher
	profiles   ProfileStore
	recorder   *Recorder
	heuristics Heuristics
	timeouts   TimeoutPolicy
	tiers      TierPolicy
	limiter    *Limiter
	now        func() time.Time
}

// NewRouter wires the router from its collaborators. Missing tiers are
// skipped during escalation.
func NewRouter(profiles ProfileStore, recorder *Recorder, heuristics Heuristics, timeouts TimeoutPolicy, tiers TierPolicy, limiter *Limiter, fetchers ...TierFetcher) *Router {
	byTier := make(map[int]TierFetcher, len(fetchers))
	for _, f := range fetchers {
		byTier[f.Tier()] = f
	}
	return &Router{
		fetchers:   byTier,
		profiles:   profiles,
		recorder:   recorder,
		heuristics: heuristics,
		timeouts:   timeouts,
		tiers:      tiers,
		limiter:    limiter,
		now:        time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (r *Router) WithNow(now func() time.Time) *Router {
	r.now = now
	return r
}

// FetchOptions tune a single routed fetch.
type FetchOptions struct {
	// DomainHint overrides domain resolution from the URL.
	DomainHint string
	// ForceTier pins the fetch to exactly one tier, like a manual
	// override: no escalation, no learned starting tier.
	ForceTier int
}

// Fetch retrieves a URL, escalating tiers as needed. It returns either
// usable content or an error; degraded bodies are never passed off as
// success.
func (r *Router) Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*FetchResult, error) {
	dom := opts.DomainHint
	if dom == "" {
		var err error
		dom, err = DomainOf(rawURL)
		if err != nil {
			return nil, err
		}
	}

	profile, err := r.profiles.Get(ctx, dom)
	if err != nil {
		// Expired or unreachable profile state resets learning, never
		// fails a fetch.
		zap.L().Warn("router: profile load failed, using priors", zap.String("domain", dom), zap.Error(err))
		profile = NewProfile(dom)
	}

	startTier := r.tiers.StartingTier(profile, r.now())
	pinned := 0
	if profile.ManualTier != 0 {
		pinned = profile.ManualTier
	}
	if opts.ForceTier != 0 {
		pinned = opts.ForceTier
	}
	if pinned != 0 {
		startTier = pinned
	}

	log := zap.L().With(zap.String("url", rawURL), zap.String("domain", dom))

	endTier := TierProxy
	if pinned != 0 {
		endTier = pinned
	}

	var attempts []Attempt
	attemptIdx := 0
	for tier := startTier; tier <= endTier; tier++ {
		fetcher, ok := r.fetchers[tier]
		if !ok {
			continue
		}
		if err := r.limiter.Wait(ctx, dom); err != nil {
			return nil, eris.Wrap(err, "router: rate limit wait")
		}

		timeout := r.timeouts.TimeoutFor(profile, attemptIdx)
		attemptIdx++

		start := r.now()
		content, title, status, fetchErr := fetcher.Fetch(ctx, rawURL, timeout)
		latency := r.now().Sub(start)

		if fetchErr != nil {
			reason := ReasonTransport
			if errors.Is(fetchErr, context.DeadlineExceeded) {
				reason = ReasonTimeout
			}
			attempts = append(attempts, Attempt{Tier: tier, Reason: reason, Latency: latency, Err: fetchErr.Error()})
			profile = r.record(ctx, dom, tier, false, latency, reason, profile)
			metrics.ObserveAttempt(tier, "transport_failure", latency.Seconds())
			log.Debug("router: transport failure, escalating",
				zap.Int("tier", tier),
				zap.String("reason", string(reason)),
				zap.Error(fetchErr),
			)
			if pinned != 0 {
				break
			}
			continue
		}

		if escalate, reason := r.heuristics.Classify(status, []byte(content)); escalate {
			attempts = append(attempts, Attempt{Tier: tier, StatusCode: status, Reason: reason, Latency: latency})
			profile = r.record(ctx, dom, tier, false, latency, reason, profile)
			metrics.ObserveAttempt(tier, "soft_failure", latency.Seconds())
			metrics.Escalations.WithLabelValues(string(reason)).Inc()
			log.Debug("router: soft failure, escalating",
				zap.Int("tier", tier),
				zap.Int("status", status),
				zap.String("reason", string(reason)),
			)
			if pinned != 0 {
				break
			}
			continue
		}

		r.record(ctx, dom, tier, true, latency, ReasonNone, profile)
		metrics.ObserveAttempt(tier, "success", latency.Seconds())
		return &FetchResult{
			Content:    content,
			Title:      title,
			StatusCode: status,
			Tier:       tier,
			Latency:    latency,
		}, nil
	}

	return nil, &ExhaustedError{URL: rawURL, Attempts: attempts}
}

func (r *Router) record(ctx context.Context, dom string, tier int, success bool, latency time.Duration, reason Reason, fallback *DomainProfile) *DomainProfile {
	if r.recorder == nil {
		return fallback
	}
	if updated := r.recorder.Record(ctx, dom, tier, success, latency, reason); updated != nil {
		return updated
	}
	return fallback
}

// DomainOf resolves the registrable host of a URL.
func DomainOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "router: parse url %s", rawURL)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", eris.Errorf("router: url has no host: %s", rawURL)
	}
	return strings.TrimPrefix(host, "www."), nil
}
