package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/aluiziolira/go-scrape-audiobooks/config"
	"github.com/gocolly/colly/v2"
)

// CollyFetcher fetches pages with a synchronous colly collector.
type CollyFetcher struct {
	collector *colly.Collector
	headers   map[string]string
}

// NewCollyFetcher builds a collector configured from cfg.
func NewCollyFetcher(cfg *config.Config, opts ...FetcherOption) *CollyFetcher {
	options := fetcherOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	if options.transport != nil {
		collector.WithTransport(options.transport)
	} else {
		collector.WithTransport(defaultTransport(cfg.Timeout))
	}

	return &CollyFetcher{
		collector: collector,
		headers:   defaultHeaders(cfg),
	}
}

// Fetch visits url and returns the response body. Each call runs on a clone
// of the base collector so callbacks never leak between requests. Error
// responses reach OnResponse and are judged by status like RestyFetcher.
func (f *CollyFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, newFetchError(url, 0, err)
	}

	c := f.collector.Clone()

	var (
		resp   *Response
		status int
	)
	c.OnRequest(func(r *colly.Request) {
		for k, v := range f.headers {
			r.Headers.Set(k, v)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		resp = &Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       r.Body,
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(url); err != nil {
		if errors.Is(err, colly.ErrRobotsTxtBlocked) {
			err = fmt.Errorf("%w: %w", ErrRobotsDisallowed, err)
		}
		return nil, newFetchError(url, status, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, newFetchError(url, 0, err)
	}
	if resp == nil {
		return nil, newFetchError(url, status, errors.New("no response received"))
	}
	if !isSuccess(resp.StatusCode) {
		return nil, newFetchError(url, resp.StatusCode, nil)
	}
	return resp, nil
}
