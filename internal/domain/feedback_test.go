package domain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder() (*Recorder, *MemoryProfileStore) {
	store := NewMemoryProfileStore(time.Hour)
	return NewRecorder(store), store
}

func TestRecord_SmoothsSuccessRate(t *testing.T) {
	r, store := newTestRecorder()
	ctx := context.Background()

	p := r.Record(ctx, "d.com", TierPlain, false, 100*time.Millisecond, ReasonTransport)
	require.NotNil(t, p)
	// 0.3*0 + 0.7*1.0
	assert.InDelta(t, 0.7, p.TierSuccess[0], 1e-9)

	p = r.Record(ctx, "d.com", TierPlain, true, 100*time.Millisecond, ReasonNone)
	assert.InDelta(t, 0.3+0.7*0.7, p.TierSuccess[0], 1e-9)

	got, err := store.Get(ctx, "d.com")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Successes)
	assert.Equal(t, 1, got.Failures)
}

func TestRecord_InvariantsHoldUnderAnySequence(t *testing.T) {
	r, _ := newTestRecorder()
	ctx := context.Background()

	outcomes := []struct {
		tier    int
		success bool
		reason  Reason
	}{
		{TierPlain, false, ReasonJSShell},
		{TierHeadless, true, ReasonNone},
		{TierHeadless, false, ReasonTimeout},
		{TierProxy, false, ReasonCaptcha},
		{TierProxy, true, ReasonNone},
		{TierPlain, false, ReasonBotChallenge},
		{TierPlain, false, ReasonThinBody},
		{TierHeadless, false, ReasonTimeout},
		{TierProxy, false, ReasonTimeout},
	}

	var p *DomainProfile
	for _, o := range outcomes {
		p = r.Record(ctx, "any.com", o.tier, o.success, 50*time.Millisecond, o.reason)
		require.NotNil(t, p)
		for i, rate := range p.TierSuccess {
			assert.GreaterOrEqual(t, rate, 0.0, "tier %d", i+1)
			assert.LessOrEqual(t, rate, 1.0, "tier %d", i+1)
		}
		assert.GreaterOrEqual(t, p.RecommendedTier, TierPlain)
		assert.LessOrEqual(t, p.RecommendedTier, TierProxy)
	}
}

func TestRecord_JSHeavyFlagNeedsCorroboration(t *testing.T) {
	r, _ := newTestRecorder()
	ctx := context.Background()

	p := r.Record(ctx, "spa.com", TierPlain, false, 0, ReasonJSShell)
	assert.False(t, p.LikelyJSHeavy)

	p = r.Record(ctx, "spa.com", TierPlain, false, 0, ReasonJSShell)
	assert.True(t, p.LikelyJSHeavy)
	assert.Equal(t, TierHeadless, p.RecommendedTier)
}

func TestRecord_BotProtectedSetsTier3Cooldown(t *testing.T) {
	r, _ := newTestRecorder()
	ctx := context.Background()

	r.Record(ctx, "guarded.com", TierPlain, false, 0, ReasonCaptcha)
	p := r.Record(ctx, "guarded.com", TierHeadless, false, 0, ReasonBotChallenge)
	assert.True(t, p.LikelyBotProtected)
	assert.Equal(t, TierProxy, p.RecommendedTier)
	assert.False(t, p.Tier3Since.IsZero())
}

func TestRecord_TimeoutsFlagSlow(t *testing.T) {
	r, _ := newTestRecorder()
	ctx := context.Background()

	var p *DomainProfile
	for i := 0; i < 3; i++ {
		p = r.Record(ctx, "slow.com", TierPlain, false, 0, ReasonTimeout)
	}
	assert.True(t, p.LikelySlow)
	assert.Equal(t, 3, p.TimeoutCount)
}

func TestRecord_LatencySmoothing(t *testing.T) {
	r, _ := newTestRecorder()
	ctx := context.Background()

	p := r.Record(ctx, "d.com", TierPlain, true, time.Second, ReasonNone)
	assert.Equal(t, time.Second, p.AvgLatency)

	p = r.Record(ctx, "d.com", TierPlain, true, 2*time.Second, ReasonNone)
	assert.InDelta(t, float64(1300*time.Millisecond), float64(p.AvgLatency), float64(time.Millisecond))
	assert.Equal(t, 2*p.AvgLatency, p.RecommendedTimeout)
}

func TestRecord_ConcurrentCountersDoNotLoseUpdates(t *testing.T) {
	r, store := newTestRecorder()
	ctx := context.Background()

	var wg sync.WaitGroup
	const n = 50
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record(ctx, "busy.com", TierPlain, false, 0, ReasonTimeout)
		}()
	}
	wg.Wait()

	p, err := store.Get(ctx, "busy.com")
	require.NoError(t, err)
	assert.Equal(t, n, p.TimeoutCount)
	assert.Equal(t, n, p.Failures)
}
