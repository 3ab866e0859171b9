package parser

import (
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-audiobooks/models"
)

// DefaultPage is assumed when a page renders no page-number indicator.
// The catalog omits the indicator on the first page of results.
const DefaultPage = 1

// PageState is the pagination metadata of one fetched page.
type PageState struct {
	Page    int
	HasNext bool
	HasPrev bool
	NextURL *url.URL
	PrevURL *url.URL
	// URL is the address the page was fetched from.
	URL *url.URL
}

// ParsePageState reads pagination state with DefaultRules.
func ParsePageState(pageURL *url.URL, body []byte) (PageState, error) {
	return DefaultRules().ParsePageState(pageURL, body)
}

// ParsePageState reads the page index and the next/previous controls.
// Relative links resolve against pageURL. A control that is missing,
// disabled, lacks an href or has an unresolvable one counts as absent.
func (r RuleSet) ParsePageState(pageURL *url.URL, body []byte) (PageState, error) {
	if pageURL == nil {
		return PageState{}, errors.New("parse page state: nil page url")
	}
	doc, err := newDocument(body)
	if err != nil {
		return PageState{}, err
	}

	state := PageState{
		Page: r.pageNumber(doc),
		URL:  cloneURL(pageURL),
	}
	state.NextURL = r.navLink(doc, r.NextButton, pageURL)
	state.HasNext = state.NextURL != nil
	state.PrevURL = r.navLink(doc, r.PrevButton, pageURL)
	state.HasPrev = state.PrevURL != nil
	return state, nil
}

func (r RuleSet) pageNumber(doc *goquery.Document) int {
	page := DefaultPage
	doc.Find(r.PageNumber).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		n, err := strconv.Atoi(strings.TrimSpace(s.Text()))
		if err != nil || n < 1 {
			return true
		}
		page = n
		return false
	})
	return page
}

func (r RuleSet) navLink(doc *goquery.Document, selector string, base *url.URL) *url.URL {
	control := doc.Find(selector).First()
	if control.Length() == 0 {
		return nil
	}
	if _, disabled := control.Attr(r.DisabledAttr); disabled {
		return nil
	}
	href, ok := control.Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	return base.ResolveReference(ref)
}

// PageResult is one fetched page: its pagination state plus the raw body
// records are extracted from. It is never mutated after construction.
type PageResult struct {
	state PageState
	body  []byte
	rules RuleSet
}

// NewPageResult builds a PageResult with DefaultRules.
func NewPageResult(pageURL *url.URL, body []byte) (*PageResult, error) {
	return DefaultRules().NewPageResult(pageURL, body)
}

// NewPageResult parses the pagination state of body and keeps a private
// copy of body for record extraction.
func (r RuleSet) NewPageResult(pageURL *url.URL, body []byte) (*PageResult, error) {
	state, err := r.ParsePageState(pageURL, body)
	if err != nil {
		return nil, err
	}
	owned := make([]byte, len(body))
	copy(owned, body)
	return &PageResult{state: state, body: owned, rules: r}, nil
}

// Records extracts the page's records. The body is re-parsed on every call.
func (p *PageResult) Records() ([]models.Record, error) {
	return p.rules.ExtractRecords(p.body)
}

// RecordsWithStats is Records plus the item and skip counts.
func (p *PageResult) RecordsWithStats() ([]models.Record, ExtractStats, error) {
	return p.rules.ExtractRecordsWithStats(p.body)
}

func (p *PageResult) Page() int     { return p.state.Page }
func (p *PageResult) HasNext() bool { return p.state.HasNext }
func (p *PageResult) HasPrev() bool { return p.state.HasPrev }

// NextURL returns a copy of the next page URL, or nil on the last page.
func (p *PageResult) NextURL() *url.URL { return cloneURL(p.state.NextURL) }

// PrevURL returns a copy of the previous page URL, or nil on the first page.
func (p *PageResult) PrevURL() *url.URL { return cloneURL(p.state.PrevURL) }

// URL returns a copy of the URL the page was fetched from.
func (p *PageResult) URL() *url.URL { return cloneURL(p.state.URL) }

// State returns the pagination state with copied URLs.
func (p *PageResult) State() PageState {
	s := p.state
	s.NextURL = cloneURL(s.NextURL)
	s.PrevURL = cloneURL(s.PrevURL)
	s.URL = cloneURL(s.URL)
	return s
}

// Body returns a copy of the stored markup.
func (p *PageResult) Body() []byte {
	out := make([]byte, len(p.body))
	copy(out, p.body)
	return out
}

type pageJSON struct {
	Page        int     `json:"page"`
	HasNext     bool    `json:"hasNext"`
	HasPrev     bool    `json:"hasPrev"`
	NextPageURL *string `json:"nextPageUrl"`
	PrevPageURL *string `json:"prevPageUrl"`
	URL         string  `json:"url"`
}

// MarshalJSON serializes the pagination metadata. The body is not part of
// a page's serialized form.
func (p *PageResult) MarshalJSON() ([]byte, error) {
	out := pageJSON{
		Page:        p.state.Page,
		HasNext:     p.state.HasNext,
		HasPrev:     p.state.HasPrev,
		NextPageURL: urlString(p.state.NextURL),
		PrevPageURL: urlString(p.state.PrevURL),
	}
	if p.state.URL != nil {
		out.URL = p.state.URL.String()
	}
	return json.Marshal(out)
}

func urlString(u *url.URL) *string {
	if u == nil {
		return nil
	}
	s := u.String()
	return &s
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	c := *u
	if u.User != nil {
		user := *u.User
		c.User = &user
	}
	return &c
}
