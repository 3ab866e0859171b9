package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aluiziolira/go-scrape-audiobooks/config"
)

// Fetcher retrieves one page. Implementations return a *FetchError for
// transport failures and non-2xx responses.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (*Response, error) {
	return f(ctx, url)
}

// Response is a successful page fetch.
type Response struct {
	// URL is the final URL after redirects.
	URL        string
	StatusCode int
	Body       []byte
}

// FetcherOption customises a fetcher.
type FetcherOption func(*fetcherOptions)

type fetcherOptions struct {
	transport http.RoundTripper
}

// WithTransport replaces the HTTP transport, e.g. with a mock in tests.
func WithTransport(rt http.RoundTripper) FetcherOption {
	return func(o *fetcherOptions) {
		o.transport = rt
	}
}

// NewFetcher returns the fetcher selected by cfg.Transport.
func NewFetcher(cfg *config.Config, opts ...FetcherOption) (Fetcher, error) {
	switch cfg.Transport {
	case config.TransportColly, "":
		return NewCollyFetcher(cfg, opts...), nil
	case config.TransportResty:
		return NewRestyFetcher(cfg, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported transport: %s", cfg.Transport)
	}
}

// defaultHeaders mimics a desktop browser; the catalog serves a reduced
// page to clients without them.
func defaultHeaders(cfg *config.Config) map[string]string {
	headers := map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
		"Cache-Control":             "max-age=0",
		"Upgrade-Insecure-Requests": "1",
	}
	if cfg.AcceptLanguage != "" {
		headers["Accept-Language"] = cfg.AcceptLanguage
	}
	return headers
}

func defaultTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
