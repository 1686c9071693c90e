package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds harvester and server configuration.
type Config struct {
	// Upstream endpoints.
	SellerCatalogURL string `yaml:"seller_catalog_url"`
	BrandCatalogURL  string `yaml:"brand_catalog_url"`
	SearchURL        string `yaml:"search_url"`
	ProductPageURL   string `yaml:"product_page_url"` // fmt pattern, %s is the product ID
	BasketHostURL    string `yaml:"basket_host_url"`  // fmt pattern, %02d is the basket number
	AppType          string `yaml:"app_type"`
	Currency         string `yaml:"currency"`
	Destination      string `yaml:"destination"`
	Sort             string `yaml:"sort"`

	// Upstream client.
	Timeout           time.Duration `yaml:"timeout"`
	UserAgent         string        `yaml:"user_agent"`
	AcceptLanguage    string        `yaml:"accept_language"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 disables the shared limiter

	// Harvest policy.
	PageSize             int           `yaml:"page_size"`
	SafetyCap            int           `yaml:"safety_cap"`
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors"`
	MaxRankPages         int           `yaml:"max_rank_pages"`
	MaxKeywords          int           `yaml:"max_keywords"`
	RateLimitCooldown    time.Duration `yaml:"rate_limit_cooldown"`
	ErrorCooldown        time.Duration `yaml:"error_cooldown"`
	TimeoutCooldown      time.Duration `yaml:"timeout_cooldown"`
	ConnectionCooldown   time.Duration `yaml:"connection_cooldown"`
	PageDelay            time.Duration `yaml:"page_delay"`
	PagesCooldown        time.Duration `yaml:"pages_cooldown"`
	PagesCooldownEvery   int           `yaml:"pages_cooldown_every"`
	RecordsCooldown      time.Duration `yaml:"records_cooldown"`
	RecordsCooldownEvery int           `yaml:"records_cooldown_every"`
	RankPageDelay        time.Duration `yaml:"rank_page_delay"`
	KeywordDelay         time.Duration `yaml:"keyword_delay"`
	CompetitorPages      int           `yaml:"competitor_pages"`
	ResolverCacheSize    int           `yaml:"resolver_cache_size"`
	ResolverCacheTTL     time.Duration `yaml:"resolver_cache_ttl"`
	BrowserFallback      bool          `yaml:"browser_fallback"`
	BrowserTimeout       time.Duration `yaml:"browser_timeout"`

	// Export pipeline.
	OutputDir          string `yaml:"output_dir"`
	OutputFile         string `yaml:"output_file"`
	OutputFormat       string `yaml:"output_format"` // csv, csv-cp1251, json, or dual
	PipelineBufferSize int    `yaml:"pipeline_buffer_size"`
	BatchSize          int    `yaml:"batch_size"`
	DedupeMaxSize      int    `yaml:"dedupe_max_size"`
	PostgresDSN        string `yaml:"postgres_dsn"`

	// Server.
	ListenAddr            string `yaml:"listen_addr"`
	MetricsAddr           string `yaml:"metrics_addr"`
	HistoryDB             string `yaml:"history_db"`
	MaxConcurrentHarvests int    `yaml:"max_concurrent_harvests"`

	// Description rewriting.
	LLMEndpoint string        `yaml:"llm_endpoint"`
	LLMModel    string        `yaml:"llm_model"`
	LLMAPIKey   string        `yaml:"llm_api_key"`
	LLMTimeout  time.Duration `yaml:"llm_timeout"`

	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns conservative defaults tuned against the public
// Wildberries endpoints. The pacing values were picked empirically and are
// expected to drift; override them instead of patching code.
func DefaultConfig() *Config {
	return &Config{
		SellerCatalogURL: "https://catalog.wb.ru/sellers/catalog",
		BrandCatalogURL:  "https://catalog.wb.ru/brands/catalog",
		SearchURL:        "https://search.wb.ru/exactmatch/ru/common/v4/search",
		ProductPageURL:   "https://www.wildberries.ru/catalog/%s/detail.aspx",
		BasketHostURL:    "https://basket-%02d.wbbasket.ru",
		AppType:          "1",
		Currency:         "rub",
		Destination:      "-1257786",
		Sort:             "popular",

		Timeout:           30 * time.Second,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		AcceptLanguage:    "ru-RU,ru;q=0.9,en;q=0.8",
		RequestsPerSecond: 2,

		PageSize:             100,
		SafetyCap:            100000,
		MaxConsecutiveErrors: 3,
		MaxRankPages:         10,
		MaxKeywords:          10,
		RateLimitCooldown:    60 * time.Second,
		ErrorCooldown:        5 * time.Second,
		TimeoutCooldown:      10 * time.Second,
		ConnectionCooldown:   30 * time.Second,
		PageDelay:            time.Second,
		PagesCooldown:        10 * time.Second,
		PagesCooldownEvery:   20,
		RecordsCooldown:      30 * time.Second,
		RecordsCooldownEvery: 1000,
		RankPageDelay:        500 * time.Millisecond,
		KeywordDelay:         500 * time.Millisecond,
		CompetitorPages:      3,
		ResolverCacheSize:    512,
		ResolverCacheTTL:     time.Hour,
		BrowserFallback:      false,
		BrowserTimeout:       45 * time.Second,

		OutputDir:          "parsed_files",
		OutputFormat:       "csv",
		PipelineBufferSize: 512,
		BatchSize:          64,
		DedupeMaxSize:      200000,

		ListenAddr:            ":5000",
		HistoryDB:             "data/runs.db",
		MaxConcurrentHarvests: 4,

		LLMModel:   "gpt-4o-mini",
		LLMTimeout: 60 * time.Second,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"seller catalog URL": c.SellerCatalogURL,
		"brand catalog URL":  c.BrandCatalogURL,
		"search URL":         c.SearchURL,
	} {
		if raw == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("%s must include a host", name)
		}
	}
	if c.ProductPageURL == "" {
		return fmt.Errorf("product page URL cannot be empty")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative")
	}

	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.SafetyCap <= 0 {
		return fmt.Errorf("safety cap must be positive")
	}
	if c.MaxConsecutiveErrors <= 0 {
		return fmt.Errorf("max consecutive errors must be positive")
	}
	if c.MaxRankPages <= 0 {
		return fmt.Errorf("max rank pages must be positive")
	}
	if c.MaxKeywords <= 0 {
		return fmt.Errorf("max keywords must be positive")
	}
	for name, d := range map[string]time.Duration{
		"rate limit cooldown": c.RateLimitCooldown,
		"error cooldown":      c.ErrorCooldown,
		"timeout cooldown":    c.TimeoutCooldown,
		"connection cooldown": c.ConnectionCooldown,
		"page delay":          c.PageDelay,
		"pages cooldown":      c.PagesCooldown,
		"records cooldown":    c.RecordsCooldown,
		"rank page delay":     c.RankPageDelay,
		"keyword delay":       c.KeywordDelay,
	} {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}
	if c.PagesCooldownEvery < 0 || c.RecordsCooldownEvery < 0 {
		return fmt.Errorf("cooldown intervals cannot be negative")
	}
	if c.CompetitorPages <= 0 {
		return fmt.Errorf("competitor pages must be positive")
	}
	if c.BrowserFallback && c.BrowserTimeout <= 0 {
		return fmt.Errorf("browser timeout must be positive when the browser fallback is enabled")
	}

	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	if !IsSupportedFormat(c.OutputFormat) {
		return fmt.Errorf("output format must be csv, csv-cp1251, json, or dual")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.MaxConcurrentHarvests <= 0 {
		return fmt.Errorf("max concurrent harvests must be positive")
	}
	if c.LLMEndpoint != "" && c.LLMTimeout <= 0 {
		return fmt.Errorf("llm timeout must be positive when an llm endpoint is set")
	}

	return nil
}

// IsSupportedFormat reports whether format names a known export format.
func IsSupportedFormat(format string) bool {
	switch format {
	case "csv", "csv-cp1251", "json", "dual":
		return true
	default:
		return false
	}
}
