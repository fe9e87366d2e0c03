// Package config provides configuration management for the retrieval engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"freshctx/pkg/utils"
)

// Environment variables that override file values.
const (
	EnvNewsAPIKey   = "NEWSAPI_KEY"
	EnvGitHubToken  = "GITHUB_TOKEN"
	EnvTechRSSFeeds = "TECH_RSS_FEEDS"
	EnvLogLevel     = "FRESHCTX_LOG_LEVEL"
)

// Configuration validation errors.
var (
	ErrInvalidLimit             = errors.New("retrieval.limit must be at least 1")
	ErrInvalidAdapterTimeout    = errors.New("retrieval.adapter_timeout_sec must be at least 1")
	ErrInvalidMaxBody           = errors.New("retrieval.max_body_kb must be at least 1")
	ErrInvalidMaxAttempts       = errors.New("retry.max_attempts must be at least 1")
	ErrInvalidInitialDelay      = errors.New("retry.initial_delay_ms must be non-negative")
	ErrInvalidBackoffMultiplier = errors.New("retry.backoff_multiplier must be >= 1.0")
	ErrInvalidTimeout           = errors.New("retry.timeout_sec must be at least 1")
	ErrInvalidMaxResults        = errors.New("max_results must be at least 1")
	ErrInvalidMaxAge            = errors.New("max_age_days must be at least 1")
	ErrInvalidBaseURL           = errors.New("base_url must be an absolute http(s) URL")
	ErrFeedMissingURL           = errors.New("feed url is required")
	ErrFeedMissingProvider      = errors.New("feed provider is required")
	ErrNoEnabledProviders       = errors.New("at least one provider must be enabled")
	ErrInvalidLogLevel          = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat         = errors.New("logging.format must be 'text' or 'json'")
)

// Config represents the complete engine configuration.
type Config struct {
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Providers ProvidersConfig `yaml:"providers"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RetrievalConfig contains settings shared by every adapter.
type RetrievalConfig struct {
	UserAgent         string      `yaml:"user_agent"`
	FeedAccept        string      `yaml:"feed_accept"`
	Retry             RetryPolicy `yaml:"retry"`
	Limit             int         `yaml:"limit"`
	AdapterTimeoutSec int         `yaml:"adapter_timeout_sec"`
	MaxBodyKb         int         `yaml:"max_body_kb"`
}

// RetryPolicy defines retry behavior for a single HTTP request.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	TimeoutSec        int     `yaml:"timeout_sec"`
}

// ProvidersConfig holds one section per source adapter.
type ProvidersConfig struct {
	News            NewsConfig            `yaml:"news"`
	Arxiv           ArxivConfig           `yaml:"arxiv"`
	GitHub          GitHubConfig          `yaml:"github"`
	SemanticScholar SemanticScholarConfig `yaml:"semantic_scholar"`
	Crossref        CrossrefConfig        `yaml:"crossref"`
	Proceedings     ProceedingsConfig     `yaml:"proceedings"`
	RSS             RSSConfig             `yaml:"rss"`
}

// NewsConfig configures the news search adapter.
type NewsConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Language   string `yaml:"language"`
	MaxResults int    `yaml:"max_results"`
	Enabled    bool   `yaml:"enabled"`
}

// ArxivConfig configures the preprint search adapter.
type ArxivConfig struct {
	BaseURL    string `yaml:"base_url"`
	MaxResults int    `yaml:"max_results"`
	Enabled    bool   `yaml:"enabled"`
}

// GitHubConfig configures the release search adapter.
type GitHubConfig struct {
	Token    string `yaml:"token"`
	BaseURL  string `yaml:"base_url"`
	MaxRepos int    `yaml:"max_repos"`
	Enabled  bool   `yaml:"enabled"`
}

// SemanticScholarConfig configures the scholarly-graph adapter.
type SemanticScholarConfig struct {
	BaseURL    string `yaml:"base_url"`
	MaxResults int    `yaml:"max_results"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Enabled    bool   `yaml:"enabled"`
}

// CrossrefConfig configures the bibliographic adapter.
type CrossrefConfig struct {
	BaseURL    string `yaml:"base_url"`
	MaxResults int    `yaml:"max_results"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Enabled    bool   `yaml:"enabled"`
}

// FeedConfig is one conference proceedings feed.
type FeedConfig struct {
	Provider string `yaml:"provider"`
	URL      string `yaml:"url"`
}

// ProceedingsConfig configures the proceedings adapter.
type ProceedingsConfig struct {
	Feeds      []FeedConfig `yaml:"feeds"`
	MaxItems   int          `yaml:"max_items"`
	MaxAgeDays int          `yaml:"max_age_days"`
	Enabled    bool         `yaml:"enabled"`
}

// RSSConfig configures the topic feed adapter.
type RSSConfig struct {
	Feeds       []string `yaml:"feeds"`
	MaxArticles int      `yaml:"max_articles"`
	Enabled     bool     `yaml:"enabled"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultFeedAccept is the Accept header sent with feed requests.
const DefaultFeedAccept = "application/rss+xml, application/atom+xml;q=0.9, application/xml;q=0.8, */*;q=0.7"

// Default returns a complete configuration usable without any file.
func Default() *Config {
	return &Config{
		Retrieval: RetrievalConfig{
			Limit:             8,
			AdapterTimeoutSec: 10,
			UserAgent:         "freshctx/1.0",
			FeedAccept:        DefaultFeedAccept,
			MaxBodyKb:         4096,
			Retry: RetryPolicy{
				MaxAttempts:       1,
				InitialDelayMs:    250,
				MaxDelayMs:        2000,
				BackoffMultiplier: 2.0,
				TimeoutSec:        10,
			},
		},
		Providers: ProvidersConfig{
			News: NewsConfig{
				Enabled:    true,
				BaseURL:    "https://newsapi.org/v2",
				Language:   "en",
				MaxResults: 4,
			},
			Arxiv: ArxivConfig{
				Enabled:    true,
				BaseURL:    "https://export.arxiv.org/api/query",
				MaxResults: 3,
			},
			GitHub: GitHubConfig{
				Enabled:  true,
				BaseURL:  "https://api.github.com",
				MaxRepos: 2,
			},
			SemanticScholar: SemanticScholarConfig{
				Enabled:    true,
				BaseURL:    "https://api.semanticscholar.org/graph/v1",
				MaxResults: 3,
				MaxAgeDays: 365,
			},
			Crossref: CrossrefConfig{
				Enabled:    true,
				BaseURL:    "https://api.crossref.org",
				MaxResults: 3,
				MaxAgeDays: 365,
			},
			Proceedings: ProceedingsConfig{
				Enabled:    true,
				MaxItems:   3,
				MaxAgeDays: 365,
				Feeds: []FeedConfig{
					{Provider: "neurips", URL: "https://papers.nips.cc/paper_files/paper/2024/rss"},
					{Provider: "iclr", URL: "https://iclr.cc/virtual/2025/overview/rss"},
					{Provider: "icml", URL: "https://proceedings.mlr.press/rss.xml"},
				},
			},
			RSS: RSSConfig{
				Enabled:     true,
				MaxArticles: 3,
				Feeds: []string{
					"https://openai.com/blog/rss/",
					"https://deepmind.google/discover/rss.xml",
					"https://huggingface.co/blog/feed",
				},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a YAML file layered over Default,
// then applies environment overrides.
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to YAML file.
func (c *Config) SaveConfig(filepath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides credentials, feed list and log level from the environment.
// lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvNewsAPIKey); ok && v != "" {
		c.Providers.News.APIKey = v
	}

	if v, ok := lookup(EnvGitHubToken); ok && v != "" {
		c.Providers.GitHub.Token = v
	}

	if v, ok := lookup(EnvTechRSSFeeds); ok {
		var feeds []string

		for _, feed := range strings.Split(v, ",") {
			if feed = strings.TrimSpace(feed); feed != "" {
				feeds = append(feeds, feed)
			}
		}

		c.Providers.RSS.Feeds = feeds
	}

	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	r := c.Retrieval

	if r.Limit < 1 {
		return ErrInvalidLimit
	}

	if r.AdapterTimeoutSec < 1 {
		return ErrInvalidAdapterTimeout
	}

	if r.MaxBodyKb < 1 {
		return ErrInvalidMaxBody
	}

	// Validate retry policy
	if r.Retry.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}

	if r.Retry.InitialDelayMs < 0 {
		return ErrInvalidInitialDelay
	}

	if r.Retry.BackoffMultiplier < 1.0 {
		return ErrInvalidBackoffMultiplier
	}

	if r.Retry.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}

	p := c.Providers

	if err := p.validate(); err != nil {
		return err
	}

	if len(c.EnabledProviders()) == 0 {
		return ErrNoEnabledProviders
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return ErrInvalidLogFormat
	}

	return nil
}

func (p *ProvidersConfig) validate() error {
	if p.News.Enabled {
		if err := checkBaseURL("providers.news", p.News.BaseURL); err != nil {
			return err
		}

		if p.News.MaxResults < 1 {
			return fmt.Errorf("providers.news: %w", ErrInvalidMaxResults)
		}
	}

	if p.Arxiv.Enabled {
		if err := checkBaseURL("providers.arxiv", p.Arxiv.BaseURL); err != nil {
			return err
		}

		if p.Arxiv.MaxResults < 1 {
			return fmt.Errorf("providers.arxiv: %w", ErrInvalidMaxResults)
		}
	}

	if p.GitHub.Enabled {
		if err := checkBaseURL("providers.github", p.GitHub.BaseURL); err != nil {
			return err
		}

		if p.GitHub.MaxRepos < 1 {
			return fmt.Errorf("providers.github.max_repos: %w", ErrInvalidMaxResults)
		}
	}

	if p.SemanticScholar.Enabled {
		if err := checkBaseURL("providers.semantic_scholar", p.SemanticScholar.BaseURL); err != nil {
			return err
		}

		if p.SemanticScholar.MaxResults < 1 {
			return fmt.Errorf("providers.semantic_scholar: %w", ErrInvalidMaxResults)
		}

		if p.SemanticScholar.MaxAgeDays < 1 {
			return fmt.Errorf("providers.semantic_scholar: %w", ErrInvalidMaxAge)
		}
	}

	if p.Crossref.Enabled {
		if err := checkBaseURL("providers.crossref", p.Crossref.BaseURL); err != nil {
			return err
		}

		if p.Crossref.MaxResults < 1 {
			return fmt.Errorf("providers.crossref: %w", ErrInvalidMaxResults)
		}

		if p.Crossref.MaxAgeDays < 1 {
			return fmt.Errorf("providers.crossref: %w", ErrInvalidMaxAge)
		}
	}

	if p.Proceedings.Enabled {
		if p.Proceedings.MaxItems < 1 {
			return fmt.Errorf("providers.proceedings.max_items: %w", ErrInvalidMaxResults)
		}

		if p.Proceedings.MaxAgeDays < 1 {
			return fmt.Errorf("providers.proceedings: %w", ErrInvalidMaxAge)
		}

		for i, feed := range p.Proceedings.Feeds {
			if feed.URL == "" {
				return fmt.Errorf("%w: providers.proceedings.feeds[%d]", ErrFeedMissingURL, i)
			}

			if feed.Provider == "" {
				return fmt.Errorf("%w: providers.proceedings.feeds[%d]", ErrFeedMissingProvider, i)
			}
		}
	}

	if p.RSS.Enabled && p.RSS.MaxArticles < 1 {
		return fmt.Errorf("providers.rss.max_articles: %w", ErrInvalidMaxResults)
	}

	return nil
}

func checkBaseURL(section, raw string) error {
	if !utils.IsHTTPURL(raw) {
		return fmt.Errorf("%s: %w: %q", section, ErrInvalidBaseURL, raw)
	}

	return nil
}

// EnabledProviders lists the names of enabled provider sections.
func (c *Config) EnabledProviders() []string {
	p := c.Providers

	var names []string

	if p.News.Enabled {
		names = append(names, "news")
	}

	if p.Arxiv.Enabled {
		names = append(names, "arxiv")
	}

	if p.GitHub.Enabled {
		names = append(names, "github")
	}

	if p.SemanticScholar.Enabled {
		names = append(names, "semantic_scholar")
	}

	if p.Crossref.Enabled {
		names = append(names, "crossref")
	}

	if p.Proceedings.Enabled {
		names = append(names, "proceedings")
	}

	if p.RSS.Enabled {
		names = append(names, "rss")
	}

	return names
}

// GetRetryDelay calculates exponential backoff delay for attempt number.
func (rp *RetryPolicy) GetRetryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delayMs := float64(rp.InitialDelayMs)
	for i := 1; i < attempt; i++ {
		delayMs *= rp.BackoffMultiplier
	}

	// Cap at max delay
	if int(delayMs) > rp.MaxDelayMs {
		delayMs = float64(rp.MaxDelayMs)
	}

	return time.Duration(int(delayMs)) * time.Millisecond
}

// GetTimeout returns the per-request timeout duration.
func (rp *RetryPolicy) GetTimeout() time.Duration {
	return time.Duration(rp.TimeoutSec) * time.Second
}

// AdapterTimeout is the budget each adapter gets per aggregate call.
func (r *RetrievalConfig) AdapterTimeout() time.Duration {
	return time.Duration(r.AdapterTimeoutSec) * time.Second
}

// MaxBodyBytes is the response size cap in bytes.
func (r *RetrievalConfig) MaxBodyBytes() int64 {
	return int64(r.MaxBodyKb) * 1024
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Providers: %s, Limit: %d, AdapterTimeout: %ds, RSSFeeds: %d}",
		strings.Join(c.EnabledProviders(), ","),
		c.Retrieval.Limit,
		c.Retrieval.AdapterTimeoutSec,
		len(c.Providers.RSS.Feeds),
	)
}
