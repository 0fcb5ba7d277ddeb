// Package config loads application configuration from file and
// environment and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Firecrawl FirecrawlConfig `yaml:"firecrawl" mapstructure:"firecrawl"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Wayback   WaybackConfig   `yaml:"wayback" mapstructure:"wayback"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Quality   QualityConfig   `yaml:"quality" mapstructure:"quality"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// ProfileTTLHours bounds how long learned domain profiles stay live.
	ProfileTTLHours int `yaml:"profile_ttl_hours" mapstructure:"profile_ttl_hours"`
}

// JinaConfig holds Jina AI Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// FirecrawlConfig holds Firecrawl API settings (premium tier only).
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds the extraction service settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// WaybackConfig holds archival settings.
type WaybackConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FetchConfig configures the tiered fetcher.
type FetchConfig struct {
	// MinBodyBytes is the thin-body escalation floor after boilerplate
	// stripping.
	MinBodyBytes int `yaml:"min_body_bytes" mapstructure:"min_body_bytes"`
	// BaseTimeoutSecs and MaxTimeoutSecs bound the adaptive timeout.
	BaseTimeoutSecs int `yaml:"base_timeout_secs" mapstructure:"base_timeout_secs"`
	MaxTimeoutSecs  int `yaml:"max_timeout_secs" mapstructure:"max_timeout_secs"`
	// PerDomainRPS is the polite per-domain request rate.
	PerDomainRPS   float64 `yaml:"per_domain_rps" mapstructure:"per_domain_rps"`
	PerDomainBurst int     `yaml:"per_domain_burst" mapstructure:"per_domain_burst"`
	// HeadlessParallel caps concurrent browser tabs.
	HeadlessParallel int `yaml:"headless_parallel" mapstructure:"headless_parallel"`
	// UserAgent overrides the default fetch user agent when set.
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
	// Tier3CooldownDays demotes a tier-3 recommendation after this long.
	Tier3CooldownDays int `yaml:"tier3_cooldown_days" mapstructure:"tier3_cooldown_days"`
}

// RetryConfig tunes retry behavior for the API clients.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// EnrichConfig configures enrichment sessions.
type EnrichConfig struct {
	MaxSearches    int     `yaml:"max_searches" mapstructure:"max_searches"`
	MaxSources     int     `yaml:"max_sources" mapstructure:"max_sources"`
	MaxTimeSecs    int     `yaml:"max_time_secs" mapstructure:"max_time_secs"`
	TopCandidates  int     `yaml:"top_candidates" mapstructure:"top_candidates"`
	AuthorityBoost float64 `yaml:"authority_boost" mapstructure:"authority_boost"`
	AuthorityCap   float64 `yaml:"authority_cap" mapstructure:"authority_cap"`
	SecondaryMin   float64 `yaml:"secondary_min" mapstructure:"secondary_min"`
	SecondaryMax   float64 `yaml:"secondary_max" mapstructure:"secondary_max"`
	// MaxConcurrentProducts caps parallel sessions in batch runs.
	MaxConcurrentProducts int `yaml:"max_concurrent_products" mapstructure:"max_concurrent_products"`
	// TemplatesFile optionally overrides the built-in search templates.
	TemplatesFile string `yaml:"templates_file" mapstructure:"templates_file"`
}

// QualityConfig configures the quality gate.
type QualityConfig struct {
	// RulesFile optionally overrides the built-in category rules.
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ProfileTTL returns the domain-profile TTL as a duration.
func (c StoreConfig) ProfileTTL() time.Duration {
	return time.Duration(c.ProfileTTLHours) * time.Hour
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "enrich.db")
	v.SetDefault("store.profile_ttl_hours", 24*7)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("wayback.enabled", true)
	v.SetDefault("wayback.base_url", "https://web.archive.org")
	v.SetDefault("fetch.min_body_bytes", 500)
	v.SetDefault("fetch.base_timeout_secs", 20)
	v.SetDefault("fetch.max_timeout_secs", 60)
	v.SetDefault("fetch.per_domain_rps", 0.5)
	v.SetDefault("fetch.per_domain_burst", 2)
	v.SetDefault("fetch.headless_parallel", 4)
	v.SetDefault("fetch.tier3_cooldown_days", 7)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.2)
	v.SetDefault("enrich.max_searches", 6)
	v.SetDefault("enrich.max_sources", 8)
	v.SetDefault("enrich.max_time_secs", 180)
	v.SetDefault("enrich.top_candidates", 3)
	v.SetDefault("enrich.authority_boost", 0.1)
	v.SetDefault("enrich.authority_cap", 0.95)
	v.SetDefault("enrich.secondary_min", 0.70)
	v.SetDefault("enrich.secondary_max", 0.80)
	v.SetDefault("enrich.max_concurrent_products", 4)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that configuration required for the given mode is
// present and within bounds. Mode is one of "enrich", "fetch", "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "enrich":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Jina.Key == "" {
			problems = append(problems, "jina.key is required")
		}
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	case "fetch":
		// Fetch works unauthenticated on tiers 1-2; Firecrawl is only
		// needed when a domain escalates to the premium tier.
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode != "fetch" {
		if c.Enrich.MaxConcurrentProducts < 1 || c.Enrich.MaxConcurrentProducts > 50 {
			problems = append(problems, "enrich.max_concurrent_products must be between 1 and 50")
		}
		if c.Enrich.MaxSearches < 1 {
			problems = append(problems, "enrich.max_searches must be >= 1")
		}
		if c.Enrich.MaxSources < 1 {
			problems = append(problems, "enrich.max_sources must be >= 1")
		}
		if c.Enrich.AuthorityBoost < 0 || c.Enrich.AuthorityBoost > 1 {
			problems = append(problems, "enrich.authority_boost must be in [0,1]")
		}
		if c.Enrich.SecondaryMin < 0 || c.Enrich.SecondaryMax > 1 || c.Enrich.SecondaryMin > c.Enrich.SecondaryMax {
			problems = append(problems, "enrich.secondary_min/secondary_max must form a band within [0,1]")
		}
	}
	if c.Fetch.MinBodyBytes < 0 {
		problems = append(problems, "fetch.min_body_bytes must be >= 0")
	}
	if c.Fetch.BaseTimeoutSecs < 1 || c.Fetch.MaxTimeoutSecs < c.Fetch.BaseTimeoutSecs {
		problems = append(problems, "fetch timeouts must satisfy 1 <= base_timeout_secs <= max_timeout_secs")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for mode %q: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
