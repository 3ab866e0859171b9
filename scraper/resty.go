package scraper

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/aluiziolira/go-scrape-audiobooks/config"
	"github.com/go-resty/resty/v2"
	"github.com/temoto/robotstxt"
)

// RestyFetcher fetches pages with a resty client. Unlike CollyFetcher it
// aborts in-flight requests when ctx is cancelled.
type RestyFetcher struct {
	client *resty.Client
	robots *robotsPolicy
}

// NewRestyFetcher builds a resty client configured from cfg.
func NewRestyFetcher(cfg *config.Config, opts ...FetcherOption) *RestyFetcher {
	options := fetcherOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeaders(defaultHeaders(cfg))
	if options.transport != nil {
		client.SetTransport(options.transport)
	} else {
		client.SetTransport(defaultTransport(cfg.Timeout))
	}

	f := &RestyFetcher{client: client}
	if cfg.RespectRobotsTxt {
		f.robots = &robotsPolicy{
			client: client,
			agent:  cfg.UserAgent,
			hosts:  make(map[string]*robotstxt.RobotsData),
		}
	}
	return f
}

// Fetch issues a GET for url.
func (f *RestyFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	if f.robots != nil {
		if err := f.robots.check(ctx, rawURL); err != nil {
			return nil, newFetchError(rawURL, 0, err)
		}
	}

	resp, err := f.client.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, newFetchError(rawURL, 0, err)
	}
	if !isSuccess(resp.StatusCode()) {
		return nil, newFetchError(rawURL, resp.StatusCode(), nil)
	}

	finalURL := rawURL
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		finalURL = raw.Request.URL.String()
	}
	return &Response{
		URL:        finalURL,
		StatusCode: resp.StatusCode(),
		Body:       resp.Body(),
	}, nil
}

// robotsPolicy caches robots.txt per scheme and host, the way colly does
// for CollyFetcher.
type robotsPolicy struct {
	client *resty.Client
	agent  string

	mu    sync.Mutex
	hosts map[string]*robotstxt.RobotsData
}

func (r *robotsPolicy) check(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	data, err := r.load(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return err
	}
	if !data.TestAgent(u.EscapedPath(), r.agent) {
		return fmt.Errorf("%w: %s", ErrRobotsDisallowed, u.EscapedPath())
	}
	return nil
}

func (r *robotsPolicy) load(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	r.mu.Lock()
	data, ok := r.hosts[origin]
	r.mu.Unlock()
	if ok {
		return data, nil
	}

	resp, err := r.client.R().SetContext(ctx).Get(origin + "/robots.txt")
	if err != nil {
		return nil, err
	}
	data, err = robotstxt.FromStatusAndBytes(resp.StatusCode(), resp.Body())
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.mu.Lock()
	r.hosts[origin] = data
	r.mu.Unlock()
	return data, nil
}
