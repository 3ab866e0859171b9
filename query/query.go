// Package query builds canonical search URLs for the audiobook catalog.
package query

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultBaseURL is the catalog search endpoint.
	DefaultBaseURL = "https://www.audible.es/search"
	// DefaultSort orders results by title rank.
	DefaultSort = "title-asc-rank"
	// DefaultPageSize is the number of results requested per page.
	DefaultPageSize = 50
	// DefaultPage is the first page index. Pages are 1-based.
	DefaultPage = 1
)

// Query parameter names understood by the catalog.
const (
	ParamNarrator = "searchNarrator"
	ParamKeywords = "keywords"
	ParamSort     = "sort"
	ParamPageSize = "pageSize"
	ParamPage     = "page"
)

var (
	// ErrInvalidBaseURL is matched by every URLBuildError.
	ErrInvalidBaseURL = errors.New("query: invalid base URL")
	// ErrInvalidPage is returned for page indexes below 1.
	ErrInvalidPage = errors.New("query: page must be >= 1")
	// ErrInvalidPageSize is returned for non-positive page sizes.
	ErrInvalidPageSize = errors.New("query: page size must be positive")
)

// URLBuildError reports a base URL that cannot host a search query.
type URLBuildError struct {
	Base string
	Err  error
}

func (e *URLBuildError) Error() string {
	return fmt.Sprintf("build url from base %q: %v", e.Base, e.Err)
}

func (e *URLBuildError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrInvalidBaseURL.
func (e *URLBuildError) Is(target error) bool {
	return target == ErrInvalidBaseURL
}

// SearchQuery is an immutable set of search criteria. Use New to get the
// defaults; every With* method returns a modified copy.
type SearchQuery struct {
	narrator string
	keywords string
	sort     string
	pageSize int
	page     int
}

// New returns a query with the default sort, page size and page.
func New() SearchQuery {
	return SearchQuery{
		sort:     DefaultSort,
		pageSize: DefaultPageSize,
		page:     DefaultPage,
	}
}

func (q SearchQuery) WithNarrator(narrator string) SearchQuery {
	q.narrator = strings.TrimSpace(narrator)
	return q
}

// WithKeywords adds a free-text keywords parameter. The catalog's own
// narrator search never sends one; an empty value keeps the URL identical
// to a narrator-only search.
func (q SearchQuery) WithKeywords(keywords string) SearchQuery {
	q.keywords = strings.TrimSpace(keywords)
	return q
}

func (q SearchQuery) WithSort(sort string) SearchQuery {
	q.sort = sort
	return q
}

func (q SearchQuery) WithPageSize(size int) SearchQuery {
	q.pageSize = size
	return q
}

func (q SearchQuery) WithPage(page int) SearchQuery {
	q.page = page
	return q
}

// Next returns the query for the following page.
func (q SearchQuery) Next() SearchQuery {
	q.page++
	return q
}

func (q SearchQuery) Narrator() string { return q.narrator }
func (q SearchQuery) Keywords() string { return q.keywords }
func (q SearchQuery) Sort() string     { return q.sort }
func (q SearchQuery) PageSize() int    { return q.pageSize }
func (q SearchQuery) Page() int        { return q.page }

// Validate checks the page and page size invariants.
func (q SearchQuery) Validate() error {
	if q.page < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidPage, q.page)
	}
	if q.pageSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidPageSize, q.pageSize)
	}
	return nil
}

// Encode renders the query string. Parameter order is fixed: narrator and
// keywords (each only when set), then sort, page size and page.
func (q SearchQuery) Encode() string {
	type pair struct{ key, value string }
	pairs := make([]pair, 0, 5)
	if q.narrator != "" {
		pairs = append(pairs, pair{ParamNarrator, q.narrator})
	}
	if q.keywords != "" {
		pairs = append(pairs, pair{ParamKeywords, q.keywords})
	}
	pairs = append(pairs,
		pair{ParamSort, q.sort},
		pair{ParamPageSize, strconv.Itoa(q.pageSize)},
		pair{ParamPage, strconv.Itoa(q.page)},
	)

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

// URL builds the request URL against DefaultBaseURL.
func (q SearchQuery) URL() (*url.URL, error) {
	return BuildURL(q)
}

// BuildURL builds the request URL for q against DefaultBaseURL.
func BuildURL(q SearchQuery) (*url.URL, error) {
	return BuildURLWithBase(DefaultBaseURL, q)
}

// BuildURLWithBase builds the request URL for q against base. Any query
// string already present on base is kept ahead of the search parameters.
func BuildURLWithBase(base string, q SearchQuery) (*url.URL, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	u, err := parseBase(base)
	if err != nil {
		return nil, err
	}

	encoded := q.Encode()
	if u.RawQuery != "" {
		encoded = u.RawQuery + "&" + encoded
	}
	u.RawQuery = encoded
	return u, nil
}

func parseBase(base string) (*url.URL, error) {
	if strings.TrimSpace(base) == "" {
		return nil, &URLBuildError{Base: base, Err: errors.New("empty base URL")}
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, &URLBuildError{Base: base, Err: err}
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &URLBuildError{Base: base, Err: errors.New("base URL must be absolute")}
	}
	u.Fragment = ""
	return u, nil
}
