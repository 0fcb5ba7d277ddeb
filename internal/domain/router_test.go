package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher serves canned responses per tier.
type stubFetcher struct {
	tier    int
	content string
	status  int
	err     error
	calls   int
}

func (s *stubFetcher) Tier() int { return s.tier }

func (s *stubFetcher) Fetch(_ context.Context, _ string, _ time.Duration) (string, string, int, error) {
	s.calls++
	if s.err != nil {
		return "", "", 0, s.err
	}
	return s.content, "title", s.status, nil
}

func validBody() string {
	return "<html><body><p>" + strings.Repeat("Distilled in Speyside, matured in sherry casks. ", 30) + "</p></body></html>"
}

func jsShellBody() string {
	return `<html><head><script src="/app.js"></script></head><body><div id="root"></div></body></html>`
}

func newTestRouter(store ProfileStore, fetchers ...TierFetcher) *Router {
	return NewRouter(
		store,
		NewRecorder(store),
		Heuristics{MinBodyBytes: 500},
		DefaultTimeoutPolicy(),
		DefaultTierPolicy(),
		NewLimiter(1000, 1000),
		fetchers...,
	)
}

func TestRouter_JSShellEscalatesToHeadless(t *testing.T) {
	store := NewMemoryProfileStore(time.Hour)
	tier1 := &stubFetcher{tier: TierPlain, content: jsShellBody(), status: 200}
	tier2 := &stubFetcher{tier: TierHeadless, content: validBody(), status: 200}
	router := newTestRouter(store, tier1, tier2)

	res, err := router.Fetch(context.Background(), "https://www.spa-distillery.com/bottles/12", FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, TierHeadless, res.Tier)
	assert.Equal(t, 1, tier1.calls)
	assert.Equal(t, 1, tier2.calls)

	// One more shell hit and the domain learns it is JS-heavy.
	tier1.content = jsShellBody()
	_, err = router.Fetch(context.Background(), "https://spa-distillery.com/bottles/13", FetchOptions{})
	require.NoError(t, err)

	p, err := store.Get(context.Background(), "spa-distillery.com")
	require.NoError(t, err)
	assert.True(t, p.LikelyJSHeavy)

	// Subsequent fetches start at tier 2 directly.
	tier1.calls, tier2.calls = 0, 0
	_, err = router.Fetch(context.Background(), "https://spa-distillery.com/bottles/14", FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, tier1.calls)
	assert.Equal(t, 1, tier2.calls)
}

func TestRouter_ExhaustionCarriesAttemptHistory(t *testing.T) {
	store := NewMemoryProfileStore(time.Hour)
	router := newTestRouter(store,
		&stubFetcher{tier: TierPlain, err: errors.New("connection refused")},
		&stubFetcher{tier: TierHeadless, content: "checking your browser", status: 200},
		&stubFetcher{tier: TierProxy, content: "", status: 403},
	)

	_, err := router.Fetch(context.Background(), "https://fortress.com/p/1", FetchOptions{})
	require.Error(t, err)

	ex, ok := IsExhausted(err)
	require.True(t, ok)
	require.Len(t, ex.Attempts, 3)
	assert.Equal(t, ReasonTransport, ex.Attempts[0].Reason)
	assert.Equal(t, ReasonBotChallenge, ex.Attempts[1].Reason)
	assert.Equal(t, ReasonHTTPDenied, ex.Attempts[2].Reason)
	assert.Contains(t, err.Error(), "fortress.com")
}

func TestRouter_ForceTierNoEscalation(t *testing.T) {
	store := NewMemoryProfileStore(time.Hour)
	tier1 := &stubFetcher{tier: TierPlain, content: jsShellBody(), status: 200}
	tier2 := &stubFetcher{tier: TierHeadless, content: validBody(), status: 200}
	router := newTestRouter(store, tier1, tier2)

	_, err := router.Fetch(context.Background(), "https://x.com/a", FetchOptions{ForceTier: TierPlain})
	require.Error(t, err)
	assert.Equal(t, 1, tier1.calls)
	assert.Equal(t, 0, tier2.calls)
}

func TestRouter_ManualTierOverride(t *testing.T) {
	store := NewMemoryProfileStore(time.Hour)
	_, err := store.Update(context.Background(), "pinned.com", func(p *DomainProfile) {
		p.ManualTier = TierHeadless
	})
	require.NoError(t, err)

	tier1 := &stubFetcher{tier: TierPlain, content: validBody(), status: 200}
	tier2 := &stubFetcher{tier: TierHeadless, content: validBody(), status: 200}
	router := newTestRouter(store, tier1, tier2)

	res, err := router.Fetch(context.Background(), "https://pinned.com/x", FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, TierHeadless, res.Tier)
	assert.Equal(t, 0, tier1.calls)
}

func TestRouter_TimeoutRecordsTimeoutReason(t *testing.T) {
	store := NewMemoryProfileStore(time.Hour)
	router := newTestRouter(store,
		&stubFetcher{tier: TierPlain, err: context.DeadlineExceeded},
	)

	_, err := router.Fetch(context.Background(), "https://slow.com/x", FetchOptions{})
	require.Error(t, err)

	p, err := store.Get(context.Background(), "slow.com")
	require.NoError(t, err)
	assert.Equal(t, 1, p.TimeoutCount)
}

func TestDomainOf(t *testing.T) {
	d, err := DomainOf("https://www.Example.com/path?q=1")
	require.NoError(t, err)
	assert.Equal(t, "example.com", d)

	_, err = DomainOf("not a url ://")
	assert.Error(t, err)
}
