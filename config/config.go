package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the aggregation service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Normalize NormalizeConfig `mapstructure:"normalize"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
}

// ServerConfig holds the HTTP API configuration.
type ServerConfig struct {
	Port        string `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// LLMConfig configures the text-generation capability. An empty APIKey
// disables model calls and the pipeline runs in degraded mode.
type LLMConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// SearchConfig configures the domain-restricted search capability.
type SearchConfig struct {
	SerpAPIKey        string        `mapstructure:"serpapi_key"`
	BingAPIKey        string        `mapstructure:"bing_api_key"`
	MaxPagesPerDomain int           `mapstructure:"max_pages_per_domain"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Concurrency       int           `mapstructure:"concurrency"`
}

// CacheConfig holds the two cache tiers and namespace TTLs.
type CacheConfig struct {
	RedisURL      string        `mapstructure:"redis_url"`
	BoltPath      string        `mapstructure:"bolt_path"`
	WhitelistTTL  time.Duration `mapstructure:"whitelist_ttl"`
	PageTTL       time.Duration `mapstructure:"page_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// FetchConfig bounds the page fetcher.
type FetchConfig struct {
	UserAgent            string        `mapstructure:"user_agent"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	GlobalConcurrency    int           `mapstructure:"global_concurrency"`
	PerDomainConcurrency int           `mapstructure:"per_domain_concurrency"`
	PerDomainRPS         float64       `mapstructure:"per_domain_rps"`
	UseBrowser           bool          `mapstructure:"use_browser"`
}

// WhitelistConfig bounds whitelist generation and validation.
type WhitelistConfig struct {
	MaxChannels      int           `mapstructure:"max_channels"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	ProbeParallelism int           `mapstructure:"probe_parallelism"`
	ChannelsFile     string        `mapstructure:"channels_file"`
}

// DedupConfig holds duplicate-clustering tunables.
type DedupConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	PriceTolerance      float64 `mapstructure:"price_tolerance"`
}

// NormalizeConfig holds the reporting currency and conversion rates.
type NormalizeConfig struct {
	TargetCurrency  string             `mapstructure:"target_currency"`
	ConversionRates map[string]float64 `mapstructure:"conversion_rates"`
}

// PipelineConfig bounds a single query end to end.
type PipelineConfig struct {
	QueryTimeout      time.Duration `mapstructure:"query_timeout"`
	DefaultMaxResults int           `mapstructure:"default_max_results"`
}

// Load reads configuration from an optional yaml file and PRICEWATCH_*
// environment variables, with defaults for every knob.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pricewatch/")

	v.SetEnvPrefix("PRICEWATCH")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; env vars and defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")

	v.SetDefault("llm.model", "gpt-4-turbo-preview")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 1000)

	v.SetDefault("search.max_pages_per_domain", 5)
	v.SetDefault("search.timeout", 10*time.Second)
	v.SetDefault("search.concurrency", 5)

	v.SetDefault("cache.bolt_path", "data/cache.db")
	v.SetDefault("cache.whitelist_ttl", 24*time.Hour)
	v.SetDefault("cache.page_ttl", 10*time.Minute)
	v.SetDefault("cache.sweep_interval", 5*time.Minute)

	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; Pricewatch/1.0; +https://pricewatch.dev/bot)")
	v.SetDefault("fetch.request_timeout", 30*time.Second)
	v.SetDefault("fetch.global_concurrency", 16)
	v.SetDefault("fetch.per_domain_concurrency", 2)
	v.SetDefault("fetch.per_domain_rps", 1.0)
	v.SetDefault("fetch.use_browser", false)

	v.SetDefault("whitelist.max_channels", 20)
	v.SetDefault("whitelist.probe_timeout", 5*time.Second)
	v.SetDefault("whitelist.probe_parallelism", 8)
	v.SetDefault("whitelist.channels_file", "config/channels.yaml")

	v.SetDefault("dedup.similarity_threshold", 0.80)
	v.SetDefault("dedup.price_tolerance", 0.02)

	v.SetDefault("normalize.target_currency", "USD")
	v.SetDefault("normalize.conversion_rates", map[string]float64{
		"USD": 1.0,
		"EUR": 0.85,
		"GBP": 0.73,
		"JPY": 110.0,
		"CAD": 1.25,
		"AUD": 1.35,
		"CHF": 0.92,
		"CNY": 6.45,
		"INR": 74.0,
	})

	v.SetDefault("pipeline.query_timeout", 45*time.Second)
	v.SetDefault("pipeline.default_max_results", 20)
}

func (c *Config) validate() error {
	if c.Whitelist.MaxChannels < 1 {
		return fmt.Errorf("whitelist.max_channels must be at least 1, got %d", c.Whitelist.MaxChannels)
	}
	if c.Fetch.PerDomainConcurrency < 1 {
		return fmt.Errorf("fetch.per_domain_concurrency must be at least 1, got %d", c.Fetch.PerDomainConcurrency)
	}
	if c.Dedup.SimilarityThreshold < 0 || c.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("dedup.similarity_threshold must be in [0,1], got %f", c.Dedup.SimilarityThreshold)
	}
	return nil
}
