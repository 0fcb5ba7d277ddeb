package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cellarworks/enrich-cli/internal/domain"
	"github.com/cellarworks/enrich-cli/internal/enrich"
	"github.com/cellarworks/enrich-cli/internal/extract"
	"github.com/cellarworks/enrich-cli/internal/fetch"
	"github.com/cellarworks/enrich-cli/internal/quality"
	"github.com/cellarworks/enrich-cli/internal/resilience"
	anthropicpkg "github.com/cellarworks/enrich-cli/pkg/anthropic"
	"github.com/cellarworks/enrich-cli/pkg/firecrawl"
	"github.com/cellarworks/enrich-cli/pkg/jina"
	"github.com/cellarworks/enrich-cli/pkg/wayback"

	"github.com/cellarworks/enrich-cli/internal/store"
)

// enrichEnv holds the initialized store, router, and pipeline shared by
// the enrich/serve commands.
type enrichEnv struct {
	Store    store.Store
	Profiles *store.ProfileCache
	Router   *domain.Router
	Pipeline *enrich.Pipeline
	Gate     *quality.Gate
}

// Close releases resources held by the environment.
func (e *enrichEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func retryConfig() resilience.RetryConfig {
	return resilience.FromRetryConfig(
		cfg.Retry.MaxAttempts,
		cfg.Retry.InitialBackoffMs,
		cfg.Retry.MaxBackoffMs,
		cfg.Retry.Multiplier,
		cfg.Retry.JitterFraction,
	)
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "enrich.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initRouter builds the tiered fetch router on top of the given profile
// store. Tier 3 is only registered when a Firecrawl key is configured.
func initRouter(profiles domain.ProfileStore) *domain.Router {
	timeouts := domain.DefaultTimeoutPolicy()
	if cfg.Fetch.BaseTimeoutSecs > 0 {
		timeouts.Base = time.Duration(cfg.Fetch.BaseTimeoutSecs) * time.Second
	}
	if cfg.Fetch.MaxTimeoutSecs > 0 {
		timeouts.Cap = time.Duration(cfg.Fetch.MaxTimeoutSecs) * time.Second
	}

	tiers := domain.DefaultTierPolicy()
	if cfg.Fetch.Tier3CooldownDays > 0 {
		tiers.Tier3Cooldown = time.Duration(cfg.Fetch.Tier3CooldownDays) * 24 * time.Hour
	}

	heuristics := domain.Heuristics{MinBodyBytes: cfg.Fetch.MinBodyBytes}
	limiter := domain.NewLimiter(cfg.Fetch.PerDomainRPS, cfg.Fetch.PerDomainBurst)
	recorder := domain.NewRecorder(profiles)

	fetchers := []domain.TierFetcher{
		fetch.NewPlainFetcher(cfg.Fetch.UserAgent),
		fetch.NewHeadlessFetcher(cfg.Fetch.UserAgent, cfg.Fetch.HeadlessParallel),
	}
	if cfg.Firecrawl.Key != "" {
		fc := firecrawl.NewClient(cfg.Firecrawl.Key,
			firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL),
			firecrawl.WithRetry(retryConfig()),
		)
		fetchers = append(fetchers, fetch.NewProxyFetcher(fc))
	} else {
		zap.L().Debug("ENRICH_FIRECRAWL_KEY not set, tier 3 disabled")
	}

	return domain.NewRouter(profiles, recorder, heuristics, timeouts, tiers, limiter, fetchers...)
}

// initEnv sets up the store, the tiered router, and the enrichment
// pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context) (*enrichEnv, error) {
	if err := cfg.Validate("enrich"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	profiles := store.NewProfileCache(st, cfg.Store.ProfileTTL())
	router := initRouter(profiles)

	rules := quality.DefaultRules()
	if cfg.Quality.RulesFile != "" {
		rules, err = quality.LoadRules(cfg.Quality.RulesFile)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load quality rules")
		}
	}
	gate := quality.NewGate(rules)

	jinaClient := jina.NewClient(cfg.Jina.Key,
		jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL),
		jina.WithRetry(retryConfig()),
	)
	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	extractor := extract.NewLLMExtractor(anthropicClient,
		extract.WithModel(cfg.Anthropic.Model),
		extract.WithMaxTokens(cfg.Anthropic.MaxTokens),
	)

	params := enrich.DefaultParams()
	params.Budget.MaxSearches = cfg.Enrich.MaxSearches
	params.Budget.MaxSources = cfg.Enrich.MaxSources
	params.Budget.MaxDuration = time.Duration(cfg.Enrich.MaxTimeSecs) * time.Second
	params.TopCandidates = cfg.Enrich.TopCandidates
	params.AuthorityBoost = cfg.Enrich.AuthorityBoost
	params.AuthorityCap = cfg.Enrich.AuthorityCap
	params.SecondaryMin = cfg.Enrich.SecondaryMin
	params.SecondaryMax = cfg.Enrich.SecondaryMax

	p := enrich.NewPipeline(jinaClient, router, extractor, gate, params)
	if cfg.Wayback.Enabled {
		p = p.WithArchiver(wayback.NewClient(wayback.WithBaseURL(cfg.Wayback.BaseURL)))
	}

	return &enrichEnv{
		Store:    st,
		Profiles: profiles,
		Router:   router,
		Pipeline: p,
		Gate:     gate,
	}, nil
}
