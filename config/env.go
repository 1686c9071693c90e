package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key and whether it was set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvFloat parses key as a float.
func EnvFloat(key string) (float64, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvDuration parses key with time.ParseDuration.
func EnvDuration(key string) (time.Duration, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvBool parses key with strconv.ParseBool.
func EnvBool(key string) (bool, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// ApplyEnv overlays WB_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"WB_SELLER_CATALOG_URL": &c.SellerCatalogURL,
		"WB_BRAND_CATALOG_URL":  &c.BrandCatalogURL,
		"WB_SEARCH_URL":         &c.SearchURL,
		"WB_DESTINATION":        &c.Destination,
		"WB_USER_AGENT":         &c.UserAgent,
		"WB_OUTPUT_DIR":         &c.OutputDir,
		"WB_OUTPUT":             &c.OutputFile,
		"WB_FORMAT":             &c.OutputFormat,
		"WB_POSTGRES_DSN":       &c.PostgresDSN,
		"WB_LISTEN_ADDR":        &c.ListenAddr,
		"WB_METRICS_ADDR":       &c.MetricsAddr,
		"WB_HISTORY_DB":         &c.HistoryDB,
		"WB_LLM_ENDPOINT":       &c.LLMEndpoint,
		"WB_LLM_MODEL":          &c.LLMModel,
		"WB_LLM_API_KEY":        &c.LLMAPIKey,
	}
	for key, dst := range strs {
		if value, ok := EnvString(key); ok {
			*dst = value
		}
	}

	ints := map[string]*int{
		"WB_PAGE_SIZE":               &c.PageSize,
		"WB_SAFETY_CAP":              &c.SafetyCap,
		"WB_MAX_CONSECUTIVE_ERRORS":  &c.MaxConsecutiveErrors,
		"WB_MAX_RANK_PAGES":          &c.MaxRankPages,
		"WB_PAGES_COOLDOWN_EVERY":    &c.PagesCooldownEvery,
		"WB_RECORDS_COOLDOWN_EVERY":  &c.RecordsCooldownEvery,
		"WB_COMPETITOR_PAGES":        &c.CompetitorPages,
		"WB_MAX_CONCURRENT_HARVESTS": &c.MaxConcurrentHarvests,
	}
	for key, dst := range ints {
		value, ok, err := EnvInt(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"WB_TIMEOUT":             &c.Timeout,
		"WB_RATE_LIMIT_COOLDOWN": &c.RateLimitCooldown,
		"WB_ERROR_COOLDOWN":      &c.ErrorCooldown,
		"WB_TIMEOUT_COOLDOWN":    &c.TimeoutCooldown,
		"WB_CONNECTION_COOLDOWN": &c.ConnectionCooldown,
		"WB_PAGE_DELAY":          &c.PageDelay,
		"WB_PAGES_COOLDOWN":      &c.PagesCooldown,
		"WB_RECORDS_COOLDOWN":    &c.RecordsCooldown,
		"WB_RANK_PAGE_DELAY":     &c.RankPageDelay,
		"WB_KEYWORD_DELAY":       &c.KeywordDelay,
		"WB_LLM_TIMEOUT":         &c.LLMTimeout,
	}
	for key, dst := range durations {
		value, ok, err := EnvDuration(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	if value, ok, err := EnvFloat("WB_REQUESTS_PER_SECOND"); err != nil {
		return err
	} else if ok {
		c.RequestsPerSecond = value
	}
	if value, ok, err := EnvBool("WB_BROWSER_FALLBACK"); err != nil {
		return err
	} else if ok {
		c.BrowserFallback = value
	}
	if value, ok, err := EnvBool("WB_VERBOSE"); err != nil {
		return err
	} else if ok {
		c.Verbose = value
	}
	return nil
}
