package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-audiobooks/config"
	"github.com/aluiziolira/go-scrape-audiobooks/models"
	"github.com/aluiziolira/go-scrape-audiobooks/parser"
	"github.com/aluiziolira/go-scrape-audiobooks/pipeline"
	"github.com/aluiziolira/go-scrape-audiobooks/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd(config.NewViper()).Execute(); err != nil {
		slog.Error("scraping failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	d := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "scraper",
		Short:         "Crawl audiobook search results and export every record",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.StringP(config.KeyNarrator, "n", d.Narrator, "Narrator to search for")
	flags.StringP(config.KeyKeywords, "k", d.Keywords, "Search keywords")
	flags.StringP(config.KeyFormat, "f", d.OutputFormat, "Output format: json, jsonl, csv, toml, or dual")
	flags.StringP(config.KeyOutput, "o", d.OutputFile, "Output file path (stdout when empty or -)")
	flags.BoolP(config.KeyVerbose, "v", d.Verbose, "Enable verbose logging")
	flags.String(config.KeyBaseURL, d.BaseURL, "Search endpoint")
	flags.String(config.KeySort, d.Sort, "Sort order")
	flags.Int(config.KeyPageSize, d.PageSize, "Results per page")
	flags.Int(config.KeyStartPage, d.StartPage, "First page to fetch")
	flags.Int(config.KeyMaxPages, d.MaxPages, "Maximum pages to crawl before aborting")
	flags.Int(config.KeyWorkers, d.Workers, "Record extraction workers")
	flags.Duration(config.KeyTimeout, d.Timeout, "Request timeout")
	flags.Duration(config.KeyDelay, d.Delay, "Pause between page requests")
	flags.Duration(config.KeyRandomDelay, d.RandomDelay, "Random jitter added to the delay")
	flags.Bool(config.KeyRespectRobots, d.RespectRobotsTxt, "Respect robots.txt directives")
	flags.String(config.KeyUserAgent, d.UserAgent, "User-Agent header")
	flags.String(config.KeyAcceptLanguage, d.AcceptLanguage, "Accept-Language header")
	flags.String(config.KeyTransport, d.Transport, "HTTP client: colly or resty")
	flags.Int(config.KeyBatchSize, d.BatchSize, "Records per output write")
	flags.Int(config.KeyBufferSize, d.PipelineBufferSize, "Fetched pages queued for extraction")
	flags.Int(config.KeyDedupeMaxSize, d.DedupeMaxSize, "Sample URLs remembered for de-duplication (0 disables it)")
	flags.String(config.KeyMetricsAddr, d.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	lo.Must0(v.BindPFlags(flags))

	return cmd
}

func run(parent context.Context, v *viper.Viper) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := scraper.NewMetrics()
	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	fetcher, err := scraper.NewFetcher(cfg)
	if err != nil {
		return err
	}
	crawler, err := scraper.NewCrawler(fetcher, cfg,
		scraper.WithMetrics(metrics),
		scraper.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("create writer: %w", err)
	}

	p := pipeline.NewPipeline(ctx, writer, cfg,
		pipeline.WithObserver(metrics),
		pipeline.WithLogger(logger),
	)
	p.Start(cfg.Workers)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	q := cfg.Query()
	slog.Info("starting crawl",
		slog.String("narrator", q.Narrator()),
		slog.String("keywords", q.Keywords()),
		slog.Int("max_pages", cfg.MaxPages),
		slog.String("transport", cfg.Transport),
		slog.Duration("delay", cfg.Delay),
		slog.Bool("respect_robots", cfg.RespectRobotsTxt),
	)

	result, err := crawler.Walk(ctx, q, func(page *parser.PageResult) error {
		return p.Process(page)
	})
	if closeErr := p.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("pipeline: %w", closeErr)
		metrics.ObserveError(closeErr)
	}
	if err != nil {
		discardOutput(cfg, writer)
		return err
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("validate output: %w", err)
	}

	printSummary(os.Stderr, result, cfg, p.GetMetrics())
	return nil
}

// discardOutput drops the output of a failed crawl. Files are removed;
// buffered formats on stdout are never flushed.
func discardOutput(cfg *config.Config, writer pipeline.OutputWriter) {
	if cfg.WritesToStdout() {
		return
	}
	if err := writer.Close(); err != nil {
		slog.Warn("close writer", slog.Any("error", err))
	}
	paths := []string{cfg.OutputFile}
	if cfg.OutputFormat == config.FormatDual {
		paths = append(paths, pipeline.DualJSONLPath(cfg.OutputFile))
	}
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("remove partial output", slog.String("path", path), slog.Any("error", err))
		}
	}
}

func printSummary(w io.Writer, result *models.CrawlResult, cfg *config.Config, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Crawl complete")

	totalItems := int64(0)
	if processed, ok := metrics["processed_records"].(int64); ok {
		totalItems = processed
	}
	skipped := int64(0)
	if value, ok := metrics["skipped_items"].(int64); ok {
		skipped = value
	}
	duration := result.Duration()
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(totalItems) / duration.Seconds()
	}

	fmt.Fprintf(w, "  Total records: %d\n", totalItems)
	fmt.Fprintf(w, "  Skipped items: %d\n", skipped)
	fmt.Fprintf(w, "  Pages:         %d\n", result.PageCount)
	fmt.Fprintf(w, "  Last page:     %d\n", result.LastPage)
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Fprintf(w, "  Validation:    %v\n", valErrors)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", duration)
	fmt.Fprintf(w, "  Records/sec:   %.2f\n", itemsPerSec)
	output := cfg.OutputFile
	if cfg.WritesToStdout() {
		output = "stdout"
	}
	fmt.Fprintf(w, "  Output:        %s (%s)\n", output, cfg.OutputFormat)
	fmt.Fprintln(w, separator)
}

// newLogger logs to stderr so stdout can carry records.
func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
