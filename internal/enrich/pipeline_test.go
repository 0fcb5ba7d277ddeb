package enrich

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarworks/enrich-cli/internal/domain"
	"github.com/cellarworks/enrich-cli/internal/extract"
	"github.com/cellarworks/enrich-cli/internal/model"
	"github.com/cellarworks/enrich-cli/internal/quality"
	"github.com/cellarworks/enrich-cli/pkg/jina"
)

type stubSearch struct {
	results []jina.SearchResult
	fn      func(query string) []jina.SearchResult
	err     error
	errOn   string // when set, err fires only for queries containing it
	calls   int
}

func (s *stubSearch) Search(_ context.Context, query string, _ ...jina.SearchOption) (*jina.SearchResponse, error) {
	s.calls++
	if s.err != nil && (s.errOn == "" || strings.Contains(query, s.errOn)) {
		return nil, s.err
	}
	if s.fn != nil {
		return &jina.SearchResponse{Data: s.fn(query)}, nil
	}
	return &jina.SearchResponse{Data: s.results}, nil
}

type stubFetch struct {
	calls   int
	failURL string
}

func (s *stubFetch) Fetch(_ context.Context, rawURL string, _ domain.FetchOptions) (*domain.FetchResult, error) {
	s.calls++
	if rawURL == s.failURL {
		return nil, &domain.ExhaustedError{URL: rawURL}
	}
	return &domain.FetchResult{Content: "page body for " + rawURL, Tier: 1, StatusCode: 200}, nil
}

type stubExtract struct {
	entries []extract.Entry
	err     error
}

func (s *stubExtract) Extract(_ context.Context, _ string, _ model.Category, _ []model.FieldDescriptor) ([]extract.Entry, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.entries, nil
}

func entryOf(conf float64, fields map[string]model.Value) extract.Entry {
	e := extract.Entry{Fields: fields, Confidence: map[string]float64{}}
	for k := range fields {
		e.Confidence[k] = conf
	}
	return e
}

func skeletonRecord() *model.ProductRecord {
	return &model.ProductRecord{
		Fingerprint: model.Fingerprint("Glen Moray 12 Year Old", "Glen Moray", model.CategoryWhiskey),
		Name:        "Glen Moray 12 Year Old",
		Brand:       "Glen Moray",
		Category:    model.CategoryWhiskey,
		Fields: model.FieldMap{
			"name": {Value: model.Str("Glen Moray 12 Year Old"), Confidence: 1, Source: "import"},
		},
		Status: model.StatusSkeleton,
	}
}

func baselineEntry() extract.Entry {
	return entryOf(0.9, map[string]model.Value{
		"name":          model.Str("Glen Moray 12 Year Old"),
		"brand":         model.Str("Glen Moray"),
		"abv":           model.Num(40),
		"description":   model.Str("A classic Speyside single malt matured in ex-bourbon casks."),
		"region":        model.Str("Speyside"),
		"age_statement": model.Str("12"),
	})
}

func completeEntry() extract.Entry {
	e := baselineEntry()
	e.Fields["tasting_notes"] = model.ListOf(model.Str("vanilla"), model.Str("honey"))
	e.Fields["distillery"] = model.Str("Glen Moray")
	e.Fields["cask_types"] = model.ListOf(model.Str("ex-bourbon"))
	e.Fields["country"] = model.Str("Scotland")
	for k := range e.Fields {
		e.Confidence[k] = 0.9
	}
	return e
}

func newTestPipeline(search *stubSearch, fetch *stubFetch, ex *stubExtract, params Params) *Pipeline {
	return NewPipeline(search, fetch, ex, quality.NewGate(quality.DefaultRules()), params)
}

func TestRunAuthoritativeStepReachesBaseline(t *testing.T) {
	search := &stubSearch{results: []jina.SearchResult{
		{Title: "Glen Moray 12", URL: "https://glenmoray.com/12-year-old"},
	}}
	fetch := &stubFetch{}
	ex := &stubExtract{entries: []extract.Entry{baselineEntry()}}

	params := DefaultParams()
	params.Budget.MaxSearches = 1

	rec := skeletonRecord()
	sess, err := newTestPipeline(search, fetch, ex, params).Run(context.Background(), rec)
	require.NoError(t, err)

	assert.True(t, sess.Status.AtLeast(model.StatusBaseline),
		"got %s with fields %v", sess.Status, sess.Fields.Keys())
	assert.True(t, sess.ProducerStep)
	assert.Equal(t, []string{"https://glenmoray.com/12-year-old"}, sess.Used)
	assert.Equal(t, rec.Status, sess.Status, "record status updated in place")

	// The authoritative step boosts extraction confidence, capped.
	assert.InDelta(t, 0.95, sess.Fields["abv"].Confidence, 1e-9)
	assert.Equal(t, "https://glenmoray.com/12-year-old", rec.Provenance["abv"])
}

func TestRunSkipsSecondaryWhenComplete(t *testing.T) {
	search := &stubSearch{results: []jina.SearchResult{
		{URL: "https://glenmoray.com/12-year-old"},
	}}
	fetch := &stubFetch{}
	ex := &stubExtract{entries: []extract.Entry{completeEntry()}}

	rec := skeletonRecord()
	sess, err := newTestPipeline(search, fetch, ex, DefaultParams()).Run(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, model.StatusComplete, sess.Status)
	assert.Equal(t, StopComplete, sess.Stop)
	assert.False(t, sess.SecondaryStep, "secondary step must not run once complete")
	assert.Equal(t, 1, search.calls)
}

func TestRunSecondaryStepConfidenceBand(t *testing.T) {
	// No authoritative results; only the review query finds a page.
	search := &stubSearch{fn: func(query string) []jina.SearchResult {
		if strings.Contains(query, "official") {
			return nil
		}
		return []jina.SearchResult{{URL: "https://whiskyreviews.example/glen-moray-12"}}
	}}
	fetch := &stubFetch{}
	ex := &stubExtract{entries: []extract.Entry{entryOf(1.0, map[string]model.Value{
		"name":          model.Str("Glen Moray 12 Year Old"),
		"tasting_notes": model.ListOf(model.Str("vanilla")),
	})}}

	params := DefaultParams()
	// Only the tasting-notes template targets a missing field here.
	params.Templates = []QueryTemplate{
		{Template: `"{name}" review`, TargetFields: []string{"tasting_notes"}},
	}

	rec := skeletonRecord()
	sess, err := newTestPipeline(search, fetch, ex, params).Run(context.Background(), rec)
	require.NoError(t, err)

	require.True(t, sess.SecondaryStep)
	// Extraction confidence 1.0 maps to the top of the secondary band,
	// below the authoritative step's reach.
	assert.InDelta(t, 0.80, sess.Fields["tasting_notes"].Confidence, 1e-9)
}

func TestRunRecordsRejections(t *testing.T) {
	search := &stubSearch{results: []jina.SearchResult{
		{URL: "https://dead.example/p"},
		{URL: "https://wrongproduct.example/p"},
	}}
	fetch := &stubFetch{failURL: "https://dead.example/p"}
	ex := &stubExtract{entries: []extract.Entry{entryOf(0.9, map[string]model.Value{
		"name":  model.Str("Completely Different Gin"),
		"brand": model.Str("Somebody Else"),
	})}}

	params := DefaultParams()
	params.Budget.MaxSearches = 1

	sess, err := newTestPipeline(search, fetch, ex, params).Run(context.Background(), skeletonRecord())
	require.NoError(t, err)

	require.Len(t, sess.Rejected, 2)
	assert.Contains(t, sess.Rejected[0].Reason, "fetch exhausted")
	assert.NotEmpty(t, sess.Rejected[1].Reason)
	assert.Empty(t, sess.Used)
	assert.Len(t, sess.Searched, 2, "every attempted URL lands in the audit trail")
}

func TestRunSearchErrorPropagates(t *testing.T) {
	search := &stubSearch{err: errors.New("rate limited")}

	sess, err := newTestPipeline(search, &stubFetch{}, &stubExtract{}, DefaultParams()).
		Run(context.Background(), skeletonRecord())
	require.Error(t, err)
	assert.Equal(t, StopSearchError, sess.Stop)
	assert.False(t, sess.ProducerStep, "failed step must not be marked done")
	assert.False(t, sess.SecondaryStep)
}

func TestRunSecondaryErrorLeavesStepUnmarked(t *testing.T) {
	// The authoritative search succeeds; the secondary search fails, so
	// only the first step is recorded as completed.
	search := &stubSearch{
		results: []jina.SearchResult{{URL: "https://glenmoray.com/12-year-old"}},
		err:     errors.New("rate limited"),
		errOn:   "review",
	}
	ex := &stubExtract{entries: []extract.Entry{baselineEntry()}}

	params := DefaultParams()
	params.Templates = []QueryTemplate{
		{Template: `"{name}" review`, TargetFields: []string{"tasting_notes"}},
	}

	sess, err := newTestPipeline(search, &stubFetch{}, ex, params).
		Run(context.Background(), skeletonRecord())
	require.Error(t, err)
	assert.Equal(t, StopSearchError, sess.Stop)
	assert.True(t, sess.ProducerStep)
	assert.False(t, sess.SecondaryStep, "failed step must not be marked done")
}

func TestRunNeverExceedsBudgets(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 100; i++ {
		var results []jina.SearchResult
		for j := 0; j < 5; j++ {
			results = append(results, jina.SearchResult{
				URL: fmt.Sprintf("https://site%d.example/run%d", j, i),
			})
		}
		search := &stubSearch{results: results}
		fetch := &stubFetch{}
		// Name-only entries keep the session hungry so it runs into
		// its budget rather than completing.
		ex := &stubExtract{entries: []extract.Entry{entryOf(0.9, map[string]model.Value{
			"name": model.Str("Glen Moray 12 Year Old"),
		})}}

		params := DefaultParams()
		params.Budget = model.SessionBudget{
			MaxSearches: rng.Intn(7),
			MaxSources:  rng.Intn(9),
			MaxDuration: time.Duration(1+rng.Intn(1000)) * time.Millisecond,
		}
		params.TopCandidates = 1 + rng.Intn(4)

		sess, err := newTestPipeline(search, fetch, ex, params).Run(context.Background(), skeletonRecord())
		require.NoError(t, err)

		assert.LessOrEqual(t, search.calls, params.Budget.MaxSearches, "config %d", i)
		assert.LessOrEqual(t, fetch.calls, params.Budget.MaxSources, "config %d", i)
		assert.LessOrEqual(t, len(sess.Searched), params.Budget.MaxSources, "config %d", i)
		assert.NotEqual(t, model.StatusComplete, sess.Status,
			"budget exhaustion must never be forced to complete")
	}
}

func TestFieldSetsForPrefersLongestSuffix(t *testing.T) {
	tawny := []model.FieldDescriptor{{Name: "bottling_year", Type: "number"}}
	generic := []model.FieldDescriptor{{Name: "style", Type: "string"}}
	sets := FieldSets{
		Fallback: "port",
		Sets: map[string][]model.FieldDescriptor{
			"port":       generic,
			"tawny_port": tawny,
		},
	}

	// Both bases are suffixes of the category; the longer one must win on
	// every call, not just on a lucky map order.
	for i := 0; i < 200; i++ {
		require.Equal(t, tawny, sets.For(model.Category("colheita_tawny_port")))
	}
	assert.Equal(t, generic, sets.For(model.Category("madeira")), "fallback for unknown categories")
}

func TestQueryTemplateExpand(t *testing.T) {
	q := QueryTemplate{Template: `"{name}" {brand} review tasting notes`}
	got := q.Expand(model.ProductIdentity{Name: "Dow's LBV 2017", Brand: "Dow's"})
	assert.Equal(t, `"Dow's LBV 2017" Dow's review tasting notes`, got)

	noBrand := q.Expand(model.ProductIdentity{Name: "Dow's LBV 2017"})
	assert.Equal(t, `"Dow's LBV 2017" review tasting notes`, noBrand)
}

func TestRankAuthoritative(t *testing.T) {
	results := []jina.SearchResult{
		{URL: "https://www.masterofmalt.com/whiskies/glen-moray-12"},
		{URL: "https://whiskyblog.example/glen-moray-12-review"},
		{URL: "https://glenmoray.com/our-range/12-year-old"},
	}
	ranked := RankAuthoritative(results, "Glen Moray")
	require.Len(t, ranked, 3)
	assert.Contains(t, ranked[0].URL, "glenmoray.com", "producer domain first")
	assert.Contains(t, ranked[2].URL, "masterofmalt.com", "retailer last")
}

func TestIsRetailer(t *testing.T) {
	assert.True(t, IsRetailer("www.masterofmalt.com"))
	assert.True(t, IsRetailer("shop.amazon.com"))
	assert.False(t, IsRetailer("glenmoray.com"))
}
