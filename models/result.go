package models

import "time"

// CrawlResult holds the overall result of a crawl.
type CrawlResult struct {
	StartTime    time.Time
	EndTime      time.Time
	PageCount    int
	RequestCount int
	LastPage     int
	LastURL      string
}

// Duration returns the wall time spent crawling.
func (r *CrawlResult) Duration() time.Duration {
	if r == nil || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
