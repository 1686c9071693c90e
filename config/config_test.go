package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "zero page size",
			mutate: func(cfg *Config) {
				cfg.PageSize = 0
			},
			wantErr: "page size",
		},
		{
			name: "empty search url",
			mutate: func(cfg *Config) {
				cfg.SearchURL = ""
			},
			wantErr: "search URL",
		},
		{
			name: "catalog url without host",
			mutate: func(cfg *Config) {
				cfg.SellerCatalogURL = "http://"
			},
			wantErr: "seller catalog URL",
		},
		{
			name: "zero timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = 0
			},
			wantErr: "timeout",
		},
		{
			name: "negative cooldown",
			mutate: func(cfg *Config) {
				cfg.RateLimitCooldown = -1 * time.Second
			},
			wantErr: "rate limit cooldown",
		},
		{
			name: "zero error threshold",
			mutate: func(cfg *Config) {
				cfg.MaxConsecutiveErrors = 0
			},
			wantErr: "consecutive errors",
		},
		{
			name: "unknown format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xlsx"
			},
			wantErr: "output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.PageSize != 100 || cfg.MaxConsecutiveErrors != 3 || cfg.SafetyCap != 100000 {
		t.Fatalf("unexpected harvest defaults: %+v", cfg)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := "page_size: 50\nrate_limit_cooldown: 2m\noutput_format: json\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PageSize != 50 {
		t.Fatalf("page size = %d, want 50", cfg.PageSize)
	}
	if cfg.RateLimitCooldown != 2*time.Minute {
		t.Fatalf("rate limit cooldown = %v, want 2m", cfg.RateLimitCooldown)
	}
	if cfg.OutputFormat != "json" {
		t.Fatalf("format = %q, want json", cfg.OutputFormat)
	}
	if cfg.MaxRankPages != 10 {
		t.Fatalf("untouched key should keep default, got %d", cfg.MaxRankPages)
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("page_sise: 50\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected unknown key to fail")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("WB_PAGE_SIZE", "25")
	t.Setenv("WB_ERROR_COOLDOWN", "750ms")
	t.Setenv("WB_REQUESTS_PER_SECOND", "0.5")
	t.Setenv("WB_BROWSER_FALLBACK", "true")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.PageSize != 25 {
		t.Fatalf("page size = %d, want 25", cfg.PageSize)
	}
	if cfg.ErrorCooldown != 750*time.Millisecond {
		t.Fatalf("error cooldown = %v", cfg.ErrorCooldown)
	}
	if cfg.RequestsPerSecond != 0.5 {
		t.Fatalf("rps = %v", cfg.RequestsPerSecond)
	}
	if !cfg.BrowserFallback {
		t.Fatalf("browser fallback should be enabled")
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("WB_SAFETY_CAP", "lots")
	if err := DefaultConfig().ApplyEnv(); err == nil || !strings.Contains(err.Error(), "WB_SAFETY_CAP") {
		t.Fatalf("expected WB_SAFETY_CAP error, got %v", err)
	}
}
