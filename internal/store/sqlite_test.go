package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarworks/enrich-cli/internal/domain"
	"github.com/cellarworks/enrich-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleRecord(name, brand string) *model.ProductRecord {
	return &model.ProductRecord{
		Fingerprint: model.Fingerprint(name, brand, model.CategoryWhiskey),
		Name:        name,
		Brand:       brand,
		Category:    model.CategoryWhiskey,
		Status:      model.StatusSkeleton,
		Fields: model.FieldMap{
			"name": {Value: model.Str(name), Confidence: 1, Source: "import"},
		},
	}
}

// --- Products ---

func TestSQLite_Product_SaveAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := sampleRecord("Lagavulin 16", "Lagavulin")
	saved, err := st.SaveProduct(ctx, rec)
	require.NoError(t, err)
	assert.False(t, saved.CreatedAt.IsZero())

	got, err := st.GetProduct(ctx, rec.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Lagavulin 16", got.Name)
	assert.Equal(t, model.StatusSkeleton, got.Status)
	assert.Equal(t, "Lagavulin 16", got.Fields["name"].Value.Text())
}

func TestSQLite_Product_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetProduct(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_Product_SaveMergesNotDuplicates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := sampleRecord("Lagavulin 16", "Lagavulin")
	_, err := st.SaveProduct(ctx, rec)
	require.NoError(t, err)

	// Second save with new fields and a higher status merges into the
	// same fingerprint.
	update := sampleRecord("Lagavulin 16", "Lagavulin")
	update.Status = model.StatusBaseline
	update.Fields["abv"] = model.FieldValue{Value: model.Num(43), Confidence: 0.9, Source: "https://a"}
	update.Provenance = map[string]string{"abv": "https://a"}

	merged, err := st.SaveProduct(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, model.StatusBaseline, merged.Status)

	all, err := st.ListProducts(ctx, ProductFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1, "same fingerprint must not duplicate")
	assert.Equal(t, 43.0, all[0].Fields["abv"].Value.Num)
	assert.Equal(t, "https://a", all[0].Provenance["abv"])
}

func TestSQLite_Product_MergeKeepsHigherConfidence(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := sampleRecord("Oban 14", "Oban")
	rec.Fields["region"] = model.FieldValue{Value: model.Str("Highland"), Confidence: 0.9, Source: "https://a"}
	_, err := st.SaveProduct(ctx, rec)
	require.NoError(t, err)

	update := sampleRecord("Oban 14", "Oban")
	update.Fields["region"] = model.FieldValue{Value: model.Str("Islands"), Confidence: 0.4, Source: "https://b"}
	merged, err := st.SaveProduct(ctx, update)
	require.NoError(t, err)

	assert.Equal(t, "Highland", merged.Fields["region"].Value.Text())
}

func TestSQLite_Product_ListFilters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := sampleRecord("Lagavulin 16", "Lagavulin")
	a.Status = model.StatusBaseline
	b := sampleRecord("Taylor's LBV", "Taylor's")
	b.Category = model.CategoryPort
	b.Fingerprint = model.Fingerprint(b.Name, b.Brand, b.Category)

	_, err := st.SaveProduct(ctx, a)
	require.NoError(t, err)
	_, err = st.SaveProduct(ctx, b)
	require.NoError(t, err)

	ports, err := st.ListProducts(ctx, ProductFilter{Category: model.CategoryPort})
	require.NoError(t, err)
	require.Len(t, ports, 1)
	assert.Equal(t, "Taylor's LBV", ports[0].Name)

	baseline, err := st.ListProducts(ctx, ProductFilter{Status: model.StatusBaseline})
	require.NoError(t, err)
	require.Len(t, baseline, 1)
	assert.Equal(t, "Lagavulin 16", baseline[0].Name)
}

// --- Sessions ---

func TestSQLite_Session_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sess := &model.EnrichmentSession{
		ID:        "sess-1",
		Product:   model.ProductIdentity{Name: "Oban 14", Brand: "Oban", Category: model.CategoryWhiskey, Fingerprint: "fp1"},
		Budget:    model.SessionBudget{MaxSearches: 3, MaxSources: 5, MaxDuration: time.Minute},
		StartedAt: time.Now().UTC().Truncate(time.Second),
		Searched:  []string{"https://a", "https://b"},
		Used:      []string{"https://a"},
		Rejected:  []model.RejectedSource{{URL: "https://b", Reason: "brand mismatch"}},
		Status:    model.StatusBaseline,
		Stop:      "max_searches",
	}
	require.NoError(t, st.SaveSession(ctx, sess))

	got, err := st.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.Searched, got.Searched)
	assert.Equal(t, sess.Rejected, got.Rejected)
	assert.Equal(t, "max_searches", got.Stop)

	listed, err := st.ListSessions(ctx, SessionFilter{Fingerprint: "fp1"})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	none, err := st.ListSessions(ctx, SessionFilter{Fingerprint: "other"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_Session_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetSession(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// --- Domain profiles ---

func TestSQLite_Profile_RoundTripAndExpiry(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := domain.NewProfile("slowsite.com")
	p.LikelyJSHeavy = true
	p.Successes = 4
	require.NoError(t, st.SetProfile(ctx, "slowsite.com", p, time.Hour))

	got, err := st.GetProfile(ctx, "slowsite.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.LikelyJSHeavy)
	assert.Equal(t, 4, got.Successes)

	// An already-expired entry is invisible and sweepable.
	require.NoError(t, st.SetProfile(ctx, "gone.com", domain.NewProfile("gone.com"), -time.Minute))

	missing, err := st.GetProfile(ctx, "gone.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	n, err := st.DeleteExpiredProfiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestProfileCache_UpdateThroughStore(t *testing.T) {
	st := newTestSQLiteStore(t)
	cache := NewProfileCache(st, time.Hour)
	ctx := context.Background()

	// Unknown domain starts from optimistic priors.
	p, err := cache.Get(ctx, "fresh.com")
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.TierSuccess[0])

	updated, err := cache.Update(ctx, "fresh.com", func(p *domain.DomainProfile) {
		p.ChallengeHits++
		p.LikelyBotProtected = true
	})
	require.NoError(t, err)
	assert.True(t, updated.LikelyBotProtected)

	// The mutation persisted.
	again, err := cache.Get(ctx, "fresh.com")
	require.NoError(t, err)
	assert.Equal(t, 1, again.ChallengeHits)
	assert.True(t, again.LikelyBotProtected)
}
