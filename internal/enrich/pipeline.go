package enrich

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cellarworks/enrich-cli/internal/domain"
	"github.com/cellarworks/enrich-cli/internal/extract"
	"github.com/cellarworks/enrich-cli/internal/fetch"
	"github.com/cellarworks/enrich-cli/internal/metrics"
	"github.com/cellarworks/enrich-cli/internal/model"
	"github.com/cellarworks/enrich-cli/internal/quality"
	"github.com/cellarworks/enrich-cli/pkg/jina"
	"github.com/cellarworks/enrich-cli/pkg/wayback"
)

// Stop reasons recorded on the session.
const (
	StopComplete    = "complete"
	StopMaxSearches = "max_searches"
	StopMaxSources  = "max_sources"
	StopMaxTime     = "max_time"
	StopFinished    = "finished"
	StopSearchError = "search_error"
)

// Fetcher is the routed fetch surface the pipeline needs. *domain.Router
// satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts domain.FetchOptions) (*domain.FetchResult, error)
}

// FieldSets maps product categories to the field vocabulary passed to
// the extraction service. Unknown categories fall back to their base
// family, then to the configured fallback.
type FieldSets struct {
	Sets     map[string][]model.FieldDescriptor `yaml:"sets"`
	Fallback string                             `yaml:"fallback"`
}

func (f FieldSets) For(category model.Category) []model.FieldDescriptor {
	key := string(category)
	if s, ok := f.Sets[key]; ok {
		return s
	}
	// Longest suffix wins regardless of map order.
	best := ""
	for base := range f.Sets {
		if !strings.HasSuffix(key, base) {
			continue
		}
		if len(base) > len(best) || (len(base) == len(best) && base < best) {
			best = base
		}
	}
	if best != "" {
		return f.Sets[best]
	}
	return f.Sets[f.Fallback]
}

// Params holds the tunables of one pipeline instance. All values are
// read-only after construction.
type Params struct {
	Budget        model.SessionBudget
	Templates     []QueryTemplate
	Fields        FieldSets
	TopCandidates int

	// Authoritative-step confidence boost and its cap.
	AuthorityBoost float64
	AuthorityCap   float64
	// Secondary-step confidence band: extraction confidence is mapped
	// linearly into [SecondaryMin, SecondaryMax].
	SecondaryMin float64
	SecondaryMax float64

	// MinConfidence mirrors the quality rules' presence threshold and
	// gates template targeting.
	MinConfidence float64
}

func DefaultParams() Params {
	return Params{
		Budget: model.SessionBudget{
			MaxSearches: 6,
			MaxSources:  8,
			MaxDuration: 3 * time.Minute,
		},
		Templates:      DefaultTemplates(),
		Fields:         DefaultFieldSets(),
		TopCandidates:  3,
		AuthorityBoost: 0.1,
		AuthorityCap:   0.95,
		SecondaryMin:   0.70,
		SecondaryMax:   0.80,
		MinConfidence:  0.5,
	}
}

// Pipeline drives one enrichment session per product: an authoritative
// producer-source step, then secondary corroborating sources, under a
// hard session budget.
type Pipeline struct {
	search    jina.Client
	fetcher   Fetcher
	extractor extract.Extractor
	gate      *quality.Gate
	validator *Validator
	archiver  wayback.Client
	params    Params
	now       func() time.Time
}

func NewPipeline(search jina.Client, fetcher Fetcher, extractor extract.Extractor, gate *quality.Gate, params Params) *Pipeline {
	return &Pipeline{
		search:    search,
		fetcher:   fetcher,
		extractor: extractor,
		gate:      gate,
		validator: NewValidator(),
		params:    params,
		now:       time.Now,
	}
}

// WithArchiver enables best-effort archival of every accepted source.
func (p *Pipeline) WithArchiver(c wayback.Client) *Pipeline {
	p.archiver = c
	return p
}

// WithNow overrides the clock, for tests.
func (p *Pipeline) WithNow(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Run enriches one product record in place and returns the session
// audit trail. The session is returned even when an error is: budgets
// may already have been spent.
func (p *Pipeline) Run(ctx context.Context, rec *model.ProductRecord) (*model.EnrichmentSession, error) {
	if rec.Fields == nil {
		rec.Fields = model.FieldMap{}
	}
	sess := &model.EnrichmentSession{
		ID:        uuid.NewString(),
		Product:   rec.Identity(),
		Fields:    rec.Fields.Clone(),
		Budget:    p.params.Budget,
		StartedAt: p.now(),
	}
	p.assess(sess)
	log := zap.L().With(
		zap.String("session_id", sess.ID),
		zap.String("product", rec.Name),
		zap.String("category", string(rec.Category)))
	log.Info("session started", zap.String("status", string(sess.Status)))

	// Step markers record completed steps only; a search error leaves the
	// failing step unmarked so a retry knows to redo it.
	var runErr error
	if stop := p.stopReason(sess); stop == "" {
		if runErr = p.authoritativeStep(ctx, sess, rec); runErr == nil {
			sess.ProducerStep = true
		}
	}
	if runErr == nil {
		if stop := p.stopReason(sess); stop == "" {
			if runErr = p.secondaryStep(ctx, sess, rec); runErr == nil {
				sess.SecondaryStep = true
			}
		}
	}

	p.finalize(sess, rec)
	log.Info("session finished",
		zap.String("status", string(sess.Status)),
		zap.String("stop", sess.Stop),
		zap.Int("searches", sess.SearchesUsed),
		zap.Int("sources_fetched", sess.SourcesUsed),
		zap.Int("sources_used", len(sess.Used)),
		zap.Int("sources_rejected", len(sess.Rejected)))
	return sess, runErr
}

// stopReason returns the first stop condition currently met, or "".
func (p *Pipeline) stopReason(s *model.EnrichmentSession) string {
	switch {
	case s.Status == model.StatusComplete:
		return StopComplete
	case s.SearchesUsed >= s.Budget.MaxSearches:
		return StopMaxSearches
	case s.SourcesUsed >= s.Budget.MaxSources:
		return StopMaxSources
	case s.Elapsed(p.now()) >= s.Budget.MaxDuration:
		return StopMaxTime
	}
	return ""
}

func (p *Pipeline) authoritativeStep(ctx context.Context, sess *model.EnrichmentSession, rec *model.ProductRecord) error {
	query := strings.Join(strings.Fields(rec.Brand+" "+rec.Name+" official"), " ")
	results, err := p.runSearch(ctx, sess, query)
	if err != nil {
		return err
	}
	ranked := RankAuthoritative(results, rec.Brand)
	p.consumeCandidates(ctx, sess, rec, ranked, p.boostAuthority)
	return nil
}

func (p *Pipeline) secondaryStep(ctx context.Context, sess *model.EnrichmentSession, rec *model.ProductRecord) error {
	for _, tmpl := range p.params.Templates {
		if p.stopReason(sess) != "" {
			return nil
		}
		if !tmpl.Wanted(sess.Fields, p.params.MinConfidence) {
			continue
		}
		results, err := p.runSearch(ctx, sess, tmpl.Expand(sess.Product))
		if err != nil {
			return err
		}
		p.consumeCandidates(ctx, sess, rec, results, p.bandSecondary)
	}
	return nil
}

// runSearch spends one search against the budget. The caller must have
// checked stop conditions; search provider failure is a hard error.
func (p *Pipeline) runSearch(ctx context.Context, sess *model.EnrichmentSession, query string) ([]jina.SearchResult, error) {
	sess.SearchesUsed++
	resp, err := p.search.Search(ctx, query, jina.WithLimit(p.params.TopCandidates*2))
	if err != nil {
		sess.Stop = StopSearchError
		return nil, eris.Wrapf(err, "enrich: search %q", query)
	}
	return resp.Data, nil
}

// consumeCandidates fetches, extracts, validates, and merges the top
// candidates from one search, re-checking stop conditions before every
// fetch.
func (p *Pipeline) consumeCandidates(ctx context.Context, sess *model.EnrichmentSession, rec *model.ProductRecord, results []jina.SearchResult, adjust func(float64) float64) {
	taken := 0
	for _, r := range results {
		if taken >= p.params.TopCandidates {
			return
		}
		if p.stopReason(sess) != "" {
			return
		}
		if r.URL == "" || alreadySeen(sess, r.URL) {
			continue
		}
		taken++
		sess.RecordSearched(r.URL)

		page, err := p.fetcher.Fetch(ctx, r.URL, domain.FetchOptions{})
		if err != nil {
			sess.RecordRejected(r.URL, fetchReason(err))
			continue
		}
		// The router returns raw bodies so escalation heuristics can see
		// markup; the extractor only wants readable text.
		text := fetch.StripHTML(page.Content)
		entries, err := p.extractor.Extract(ctx, text, rec.Category, p.params.Fields.For(rec.Category))
		if err != nil {
			sess.RecordRejected(r.URL, "extract: "+err.Error())
			continue
		}

		accepted := false
		for _, entry := range entries {
			verdict := p.validator.Validate(sess.Product, candidateOf(entry, page.Title))
			if !verdict.Accept {
				sess.RecordRejected(r.URL, verdict.Reason)
				continue
			}
			p.mergeEntry(sess, rec, entry, r.URL, adjust)
			accepted = true
		}
		if accepted {
			sess.RecordUsed(r.URL)
			p.assess(sess)
			p.archive(r.URL)
		}
	}
}

// mergeEntry folds one accepted entry into the session field map and
// tracks provenance for every field the entry won.
func (p *Pipeline) mergeEntry(sess *model.EnrichmentSession, rec *model.ProductRecord, entry extract.Entry, sourceURL string, adjust func(float64) float64) {
	incoming := model.FieldMap{}
	for name, val := range entry.Fields {
		incoming[name] = model.FieldValue{
			Value:      val,
			Confidence: adjust(entry.Confidence[name]),
			Source:     sourceURL,
		}
	}
	sess.Fields = MergeFields(sess.Fields, incoming)
	if rec.Provenance == nil {
		rec.Provenance = map[string]string{}
	}
	// MergeField stamps the winner's Source; a field whose source is
	// this URL was set or updated by this entry.
	for name := range incoming {
		if sess.Fields[name].Source == sourceURL {
			rec.Provenance[name] = sourceURL
		}
	}
}

func (p *Pipeline) boostAuthority(conf float64) float64 {
	conf += p.params.AuthorityBoost
	if conf > p.params.AuthorityCap {
		conf = p.params.AuthorityCap
	}
	return conf
}

func (p *Pipeline) bandSecondary(conf float64) float64 {
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}
	return p.params.SecondaryMin + conf*(p.params.SecondaryMax-p.params.SecondaryMin)
}

func (p *Pipeline) assess(sess *model.EnrichmentSession) {
	a := p.gate.Assess(sess.Fields, sess.Product.Category)
	sess.Status = a.Status
	sess.Score = a.Score
}

// archive submits a used source to the public archive, fire and forget.
func (p *Pipeline) archive(url string) {
	if p.archiver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := p.archiver.Save(ctx, url); err != nil {
			zap.L().Debug("archive save failed", zap.String("url", url), zap.Error(err))
		}
	}()
}

func (p *Pipeline) finalize(sess *model.EnrichmentSession, rec *model.ProductRecord) {
	sess.FinishedAt = p.now()
	if sess.Stop == "" {
		if stop := p.stopReason(sess); stop != "" {
			sess.Stop = stop
		} else {
			sess.Stop = StopFinished
		}
	}
	rec.Fields = sess.Fields
	rec.Status = sess.Status
	rec.UpdatedAt = sess.FinishedAt
	metrics.Sessions.WithLabelValues(string(sess.Status), sess.Stop).Inc()
}

func alreadySeen(sess *model.EnrichmentSession, url string) bool {
	for _, u := range sess.Searched {
		if u == url {
			return true
		}
	}
	return false
}

func candidateOf(entry extract.Entry, pageTitle string) Candidate {
	var text strings.Builder
	text.WriteString(pageTitle)
	for _, f := range []string{"description", "tasting_notes", "style", "cask_types"} {
		if v, ok := entry.Fields[f]; ok {
			text.WriteString(" ")
			text.WriteString(v.Text())
		}
	}
	name := ""
	if v, ok := entry.Fields["name"]; ok {
		name = v.Text()
	}
	brand := ""
	if v, ok := entry.Fields["brand"]; ok {
		brand = v.Text()
	}
	return Candidate{Name: name, Brand: brand, Text: text.String()}
}

func fetchReason(err error) string {
	var ex *domain.ExhaustedError
	if errors.As(err, &ex) {
		return "fetch exhausted: " + ex.Error()
	}
	return "fetch: " + err.Error()
}
