package config

import (
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
			name: "negative workers",
			mutate: func(cfg *Config) {
				cfg.Workers = -1
			},
			wantErr: "workers",
		},
		{
			name: "zero max pages",
			mutate: func(cfg *Config) {
				cfg.MaxPages = 0
			},
			wantErr: "max pages",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "zero page size",
			mutate: func(cfg *Config) {
				cfg.PageSize = 0
			},
			wantErr: "page size",
		},
		{
			name: "zero start page",
			mutate: func(cfg *Config) {
				cfg.StartPage = 0
			},
			wantErr: "start page",
		},
		{
			name: "unknown transport",
			mutate: func(cfg *Config) {
				cfg.Transport = "curl"
			},
			wantErr: "transport",
		},
		{
			name: "unknown format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
		{
			name: "dual to stdout",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = FormatDual
				cfg.OutputFile = "-"
			},
			wantErr: "dual",
		},
		{
			name: "dual to jsonl path",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = FormatDual
				cfg.OutputFile = "out/records.JSONL"
			},
			wantErr: ".jsonl",
		},
		{
			name: "negative delay",
			mutate: func(cfg *Config) {
				cfg.Delay = -time.Millisecond
			},
			wantErr: "delay",
		},
		{
			name: "negative random delay",
			mutate: func(cfg *Config) {
				cfg.RandomDelay = -time.Millisecond
			},
			wantErr: "random delay",
		},
		{
			name: "negative dedupe size",
			mutate: func(cfg *Config) {
				cfg.DedupeMaxSize = -1
			},
			wantErr: "dedupe",
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
	if !cfg.WritesToStdout() {
		t.Fatalf("default config should write to stdout")
	}
}

func TestConfigValidateAcceptsDisabledDedupeAndDualCSV(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DedupeMaxSize = 0
	cfg.OutputFormat = FormatDual
	cfg.OutputFile = "out/records.csv"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestConfigQuery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Narrator = "Jordi Salas"
	cfg.StartPage = 4
	q := cfg.Query()
	if q.Narrator() != "Jordi Salas" || q.Page() != 4 || q.PageSize() != 50 || q.Sort() != "title-asc-rank" {
		t.Fatalf("unexpected query %+v", q)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := DefaultConfig()
	if *cfg != *want {
		t.Fatalf("loaded config = %+v, want %+v", cfg, want)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SCRAPER_MAX_PAGES", "7")
	t.Setenv("SCRAPER_NARRATOR", "Jordi Salas")
	t.Setenv("SCRAPER_TIMEOUT", "5s")
	t.Setenv("SCRAPER_FORMAT", "CSV")
	t.Setenv("SCRAPER_TRANSPORT", "resty")
	t.Setenv("SCRAPER_DELAY", "250ms")
	t.Setenv("SCRAPER_RANDOM_DELAY", "1s")
	t.Setenv("SCRAPER_RESPECT_ROBOTS", "true")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxPages != 7 {
		t.Fatalf("max pages = %d, want 7", cfg.MaxPages)
	}
	if cfg.Narrator != "Jordi Salas" {
		t.Fatalf("narrator = %q", cfg.Narrator)
	}
	if cfg.Timeout != 5*time.Second {
		t.Fatalf("timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.OutputFormat != FormatCSV {
		t.Fatalf("format = %q, want csv", cfg.OutputFormat)
	}
	if cfg.Transport != TransportResty {
		t.Fatalf("transport = %q, want resty", cfg.Transport)
	}
	if cfg.Delay != 250*time.Millisecond || cfg.RandomDelay != time.Second {
		t.Fatalf("delay = %v random delay = %v", cfg.Delay, cfg.RandomDelay)
	}
	if !cfg.RespectRobotsTxt {
		t.Fatalf("expected robots.txt to be respected")
	}
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("SCRAPER_WORKERS", "0")
	if _, err := Load(NewViper()); err == nil || !strings.Contains(err.Error(), "workers") {
		t.Fatalf("expected workers error, got %v", err)
	}
}
