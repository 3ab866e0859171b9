package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-audiobooks/query"
	"github.com/spf13/viper"
)

// Supported values for Config.Transport.
const (
	TransportColly = "colly"
	TransportResty = "resty"
)

// Supported values for Config.OutputFormat.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTOML  = "toml"
	FormatDual  = "dual"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL        string
	Narrator       string
	Keywords       string
	Sort           string
	PageSize       int
	StartPage      int
	MaxPages       int
	Workers        int
	Timeout        time.Duration
	UserAgent      string
	AcceptLanguage string
	Transport      string // colly or resty
	OutputFile     string // empty or "-" writes to stdout
	OutputFormat   string // json, jsonl, csv, toml, or dual
	BatchSize      int

	// Delay is the pause before every page fetch after the first;
	// RandomDelay adds up to that much jitter on top of it.
	Delay            time.Duration
	RandomDelay      time.Duration
	RespectRobotsTxt bool

	// PipelineBufferSize is the number of fetched pages queued for extraction.
	PipelineBufferSize int
	// DedupeMaxSize bounds the sample URLs remembered for de-duplication.
	// Zero disables de-duplication.
	DedupeMaxSize int
	MetricsAddr   string
	Verbose       bool
}

// DefaultConfig returns conservative defaults for the catalog.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            query.DefaultBaseURL,
		Sort:               query.DefaultSort,
		PageSize:           query.DefaultPageSize,
		StartPage:          query.DefaultPage,
		MaxPages:           500,
		Workers:            1,
		Timeout:            30 * time.Second,
		Delay:              0,
		RandomDelay:        0,
		RespectRobotsTxt:   false,
		UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/93.0.4577.82 Safari/537.36",
		AcceptLanguage:     "es-ES,es;q=0.9,en;q=0.8",
		Transport:          TransportColly,
		OutputFile:         "",
		OutputFormat:       FormatJSON,
		BatchSize:          64,
		PipelineBufferSize: 16,
		DedupeMaxSize:      100000,
		MetricsAddr:        "",
		Verbose:            false,
	}
}

// Query returns the search query described by the configuration.
func (c *Config) Query() query.SearchQuery {
	return query.New().
		WithNarrator(c.Narrator).
		WithKeywords(c.Keywords).
		WithSort(c.Sort).
		WithPageSize(c.PageSize).
		WithPage(c.StartPage)
}

// WritesToStdout reports whether output goes to standard output.
func (c *Config) WritesToStdout() bool {
	return c.OutputFile == "" || c.OutputFile == "-"
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if strings.TrimSpace(c.Sort) == "" {
		return fmt.Errorf("sort cannot be empty")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.StartPage <= 0 {
		return fmt.Errorf("start page must be positive")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Transport != TransportColly && c.Transport != TransportResty {
		return fmt.Errorf("transport must be colly or resty")
	}
	switch c.OutputFormat {
	case FormatJSON, FormatJSONL, FormatCSV, FormatTOML:
	case FormatDual:
		if c.WritesToStdout() {
			return fmt.Errorf("output format dual requires an output file")
		}
		// The JSONL companion would overwrite the CSV file.
		if strings.EqualFold(filepath.Ext(c.OutputFile), ".jsonl") {
			return fmt.Errorf("output format dual cannot write its csv file to a .jsonl path")
		}
	default:
		return fmt.Errorf("output format must be json, jsonl, csv, toml, or dual")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.PipelineBufferSize < 0 {
		return fmt.Errorf("pipeline buffer size cannot be negative")
	}
	if c.DedupeMaxSize < 0 {
		return fmt.Errorf("dedupe max size cannot be negative")
	}

	return nil
}

// Configuration keys. Flags use the same names; environment variables use
// the SCRAPER_ prefix with dashes turned into underscores.
const (
	KeyBaseURL        = "base-url"
	KeyNarrator       = "narrator"
	KeyKeywords       = "keywords"
	KeySort           = "sort"
	KeyPageSize       = "page-size"
	KeyStartPage      = "start-page"
	KeyMaxPages       = "max-pages"
	KeyWorkers        = "workers"
	KeyTimeout        = "timeout"
	KeyDelay          = "delay"
	KeyRandomDelay    = "random-delay"
	KeyRespectRobots  = "respect-robots"
	KeyUserAgent      = "user-agent"
	KeyAcceptLanguage = "accept-language"
	KeyTransport      = "transport"
	KeyOutput         = "output"
	KeyFormat         = "format"
	KeyBatchSize      = "batch-size"
	KeyBufferSize     = "buffer-size"
	KeyDedupeMaxSize  = "dedupe-max-size"
	KeyMetricsAddr    = "metrics-addr"
	KeyVerbose        = "verbose"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SCRAPER"

// NewViper returns a viper instance wired to the SCRAPER_ environment and
// seeded with DefaultConfig values.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault(KeyBaseURL, d.BaseURL)
	v.SetDefault(KeyNarrator, d.Narrator)
	v.SetDefault(KeyKeywords, d.Keywords)
	v.SetDefault(KeySort, d.Sort)
	v.SetDefault(KeyPageSize, d.PageSize)
	v.SetDefault(KeyStartPage, d.StartPage)
	v.SetDefault(KeyMaxPages, d.MaxPages)
	v.SetDefault(KeyWorkers, d.Workers)
	v.SetDefault(KeyTimeout, d.Timeout)
	v.SetDefault(KeyDelay, d.Delay)
	v.SetDefault(KeyRandomDelay, d.RandomDelay)
	v.SetDefault(KeyRespectRobots, d.RespectRobotsTxt)
	v.SetDefault(KeyUserAgent, d.UserAgent)
	v.SetDefault(KeyAcceptLanguage, d.AcceptLanguage)
	v.SetDefault(KeyTransport, d.Transport)
	v.SetDefault(KeyOutput, d.OutputFile)
	v.SetDefault(KeyFormat, d.OutputFormat)
	v.SetDefault(KeyBatchSize, d.BatchSize)
	v.SetDefault(KeyBufferSize, d.PipelineBufferSize)
	v.SetDefault(KeyDedupeMaxSize, d.DedupeMaxSize)
	v.SetDefault(KeyMetricsAddr, d.MetricsAddr)
	v.SetDefault(KeyVerbose, d.Verbose)
	return v
}

// Load builds a Config from v. Values resolve in viper's usual order:
// explicitly set flags, then environment, then defaults.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = NewViper()
	}

	cfg := &Config{
		BaseURL:            v.GetString(KeyBaseURL),
		Narrator:           v.GetString(KeyNarrator),
		Keywords:           v.GetString(KeyKeywords),
		Sort:               v.GetString(KeySort),
		PageSize:           v.GetInt(KeyPageSize),
		StartPage:          v.GetInt(KeyStartPage),
		MaxPages:           v.GetInt(KeyMaxPages),
		Workers:            v.GetInt(KeyWorkers),
		Timeout:            v.GetDuration(KeyTimeout),
		Delay:              v.GetDuration(KeyDelay),
		RandomDelay:        v.GetDuration(KeyRandomDelay),
		RespectRobotsTxt:   v.GetBool(KeyRespectRobots),
		UserAgent:          v.GetString(KeyUserAgent),
		AcceptLanguage:     v.GetString(KeyAcceptLanguage),
		Transport:          strings.ToLower(v.GetString(KeyTransport)),
		OutputFile:         v.GetString(KeyOutput),
		OutputFormat:       strings.ToLower(v.GetString(KeyFormat)),
		BatchSize:          v.GetInt(KeyBatchSize),
		PipelineBufferSize: v.GetInt(KeyBufferSize),
		DedupeMaxSize:      v.GetInt(KeyDedupeMaxSize),
		MetricsAddr:        v.GetString(KeyMetricsAddr),
		Verbose:            v.GetBool(KeyVerbose),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
