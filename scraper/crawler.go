package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/aluiziolira/go-scrape-audiobooks/config"
	"github.com/aluiziolira/go-scrape-audiobooks/models"
	"github.com/aluiziolira/go-scrape-audiobooks/parser"
	"github.com/aluiziolira/go-scrape-audiobooks/query"
)

// Crawler walks search result pages by following each page's next link.
type Crawler struct {
	fetcher     Fetcher
	baseURL     string
	maxPages    int
	delay       time.Duration
	randomDelay time.Duration
	rules       parser.RuleSet
	metrics     *Metrics
	logger      *slog.Logger
}

// Option customises a Crawler.
type Option func(*Crawler)

// WithRules overrides the extraction rules used to parse pages.
func WithRules(rules parser.RuleSet) Option {
	return func(c *Crawler) {
		c.rules = rules
	}
}

// WithMetrics records request, page and error metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Crawler) {
		c.metrics = m
	}
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCrawler returns a crawler that fetches through fetcher. cfg supplies
// the base URL, the page cap and the pause between fetches.
func NewCrawler(fetcher Fetcher, cfg *config.Config, opts ...Option) (*Crawler, error) {
	if fetcher == nil {
		return nil, errors.New("new crawler: nil fetcher")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if cfg.MaxPages <= 0 {
		return nil, errors.New("new crawler: max pages must be positive")
	}
	if cfg.Delay < 0 || cfg.RandomDelay < 0 {
		return nil, errors.New("new crawler: delay cannot be negative")
	}
	c := &Crawler{
		fetcher:     fetcher,
		baseURL:     cfg.BaseURL,
		maxPages:    cfg.MaxPages,
		delay:       cfg.Delay,
		randomDelay: cfg.RandomDelay,
		rules:       parser.DefaultRules(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.rules.Validate(); err != nil {
		return nil, fmt.Errorf("new crawler: %w", err)
	}
	return c, nil
}

// Walk fetches the first page for q and keeps following next links until a
// page reports none. fn is called with every page in crawl order; an error
// from fn, a fetch failure or an unparseable page stops the walk and Walk
// returns a nil result.
func (c *Crawler) Walk(ctx context.Context, q query.SearchQuery, fn func(*parser.PageResult) error) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	startURL, err := query.BuildURLWithBase(c.baseURL, q)
	if err != nil {
		c.metrics.ObserveError(err)
		return nil, err
	}

	result := &models.CrawlResult{StartTime: time.Now()}
	visited := make(map[string]struct{})
	next := startURL.String()

	for {
		if result.PageCount >= c.maxPages {
			err := fmt.Errorf("%w: %d pages fetched, next %s", ErrMaxPagesExceeded, result.PageCount, next)
			return nil, c.fail(next, err)
		}
		if _, seen := visited[next]; seen {
			return nil, c.fail(next, fmt.Errorf("%w: %s", ErrPaginationLoop, next))
		}
		visited[next] = struct{}{}

		if result.RequestCount > 0 {
			if err := c.pause(ctx); err != nil {
				return nil, c.fail(next, newFetchError(next, 0, err))
			}
		}
		result.RequestCount++
		page, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, c.fail(next, err)
		}
		// A redirect can land on a page that was already walked.
		if final := page.URL().String(); final != next {
			if _, seen := visited[final]; seen {
				return nil, c.fail(final, fmt.Errorf("%w: %s", ErrPaginationLoop, final))
			}
			visited[final] = struct{}{}
		}

		result.PageCount++
		result.LastPage = page.Page()
		result.LastURL = page.URL().String()

		if fn != nil {
			if err := fn(page); err != nil {
				return nil, c.fail(result.LastURL, fmt.Errorf("handle page %s: %w", result.LastURL, err))
			}
		}

		if !page.HasNext() {
			break
		}
		next = page.NextURL().String()
	}

	result.EndTime = time.Now()
	c.logger.Info("crawl finished",
		slog.Int("pages", result.PageCount),
		slog.Int("last_page", result.LastPage),
		slog.Duration("duration", result.Duration()),
	)
	return result, nil
}

// CrawlAll walks every page for q and returns them in crawl order. On any
// failure no pages are returned.
func (c *Crawler) CrawlAll(ctx context.Context, q query.SearchQuery) ([]*parser.PageResult, error) {
	var pages []*parser.PageResult
	_, err := c.Walk(ctx, q, func(p *parser.PageResult) error {
		pages = append(pages, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pages, nil
}

func (c *Crawler) fetchPage(ctx context.Context, rawURL string) (*parser.PageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, newFetchError(rawURL, 0, err)
	}

	c.metrics.IncRequest("started")
	start := time.Now()
	resp, err := c.fetcher.Fetch(ctx, rawURL)
	c.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			err = newFetchError(rawURL, 0, err)
		}
		return nil, err
	}
	c.metrics.IncRequest("completed")

	finalURL := resp.URL
	if finalURL == "" {
		finalURL = rawURL
	}
	pageURL, err := url.Parse(finalURL)
	if err != nil {
		return nil, &PageError{URL: finalURL, Err: err}
	}

	page, err := c.rules.NewPageResult(pageURL, resp.Body)
	if err != nil {
		return nil, &PageError{URL: finalURL, Err: err}
	}
	c.metrics.IncPages()

	c.logger.Debug("page fetched",
		slog.Int("page", page.Page()),
		slog.String("url", finalURL),
		slog.Bool("has_next", page.HasNext()),
	)
	return page, nil
}

// pause waits the configured delay plus jitter, or until ctx is done.
func (c *Crawler) pause(ctx context.Context) error {
	wait := c.delay
	if c.randomDelay > 0 {
		wait += rand.N(c.randomDelay)
	}
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Crawler) fail(rawURL string, err error) error {
	c.metrics.ObserveError(err)
	c.logger.Error("crawl aborted",
		slog.String("url", rawURL),
		slog.String("category", errorTypeLabel(err)),
		slog.Any("error", err),
	)
	return err
}
