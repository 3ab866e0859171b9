package parser

import (
	"encoding/json"
	"net/url"
	"testing"

	_ "embed"

	"github.com/stretchr/testify/require"
)

//go:embed testdata/first_page.html
var firstPageHTML []byte

//go:embed testdata/last_page.html
var lastPageHTML []byte

//go:embed testdata/empty_page.html
var emptyPageHTML []byte

//go:embed testdata/missing_narrator.html
var missingNarratorHTML []byte

const fixtureURL = "https://www.audible.es/search?searchNarrator=Jordi+Salas&sort=title-asc-rank&pageSize=50&page=1"

func mustParseURL(t testing.TB, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestParsePageStateFirstPage(t *testing.T) {
	state, err := ParsePageState(mustParseURL(t, fixtureURL), firstPageHTML)
	require.NoError(t, err)

	require.Equal(t, 1, state.Page)
	require.True(t, state.HasNext)
	require.NotNil(t, state.NextURL)
	require.Equal(t,
		"https://www.audible.es/search?searchNarrator=Jordi+Salas&sort=title-asc-rank&pageSize=50&page=2",
		state.NextURL.String(),
	)
	require.False(t, state.HasPrev)
	require.Nil(t, state.PrevURL)
	require.Equal(t, fixtureURL, state.URL.String())
}

func TestParsePageStateLastPage(t *testing.T) {
	pageURL := "https://www.audible.es/search?searchNarrator=Jordi+Salas&sort=title-asc-rank&pageSize=50&page=3"
	state, err := ParsePageState(mustParseURL(t, pageURL), lastPageHTML)
	require.NoError(t, err)

	require.Equal(t, 3, state.Page)
	require.False(t, state.HasNext, "disabled next control must not be followed")
	require.Nil(t, state.NextURL)
	require.True(t, state.HasPrev)
	require.Equal(t,
		"https://www.audible.es/search?searchNarrator=Jordi+Salas&sort=title-asc-rank&pageSize=50&page=2",
		state.PrevURL.String(),
	)
}

func TestParsePageStateResolvesAgainstPageURL(t *testing.T) {
	body := []byte(`<html><body>
		<span class="nextButton"><a href="?page=2">Next</a></span>
	</body></html>`)

	state, err := ParsePageState(mustParseURL(t, "https://example.com/search?page=1"), body)
	require.NoError(t, err)
	require.True(t, state.HasNext)
	require.Equal(t, "https://example.com/search?page=2", state.NextURL.String())
	require.False(t, state.HasPrev)
	require.Nil(t, state.PrevURL)
}

func TestParsePageStateNavigationEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantPage int
		wantNext bool
	}{
		{
			name:     "next without href",
			body:     `<span class="nextButton"><a>Next</a></span>`,
			wantPage: 1,
		},
		{
			name:     "next with empty href",
			body:     `<span class="nextButton"><a href="  ">Next</a></span>`,
			wantPage: 1,
		},
		{
			name:     "unresolvable href",
			body:     `<span class="nextButton"><a href="http://[::1">Next</a></span>`,
			wantPage: 1,
		},
		{
			name:     "disabled with empty attribute value",
			body:     `<span class="nextButton"><a aria-disabled href="?page=2">Next</a></span>`,
			wantPage: 1,
		},
		{
			name:     "unparseable page number falls back",
			body:     `<span class="pageNumberElement">dos</span><span class="nextButton"><a href="?page=3">Next</a></span>`,
			wantPage: 1,
			wantNext: true,
		},
		{
			name:     "first parseable page number wins",
			body:     `<span class="pageNumberElement">x</span><span class="pageNumberElement"> 7 </span>`,
			wantPage: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := ParsePageState(mustParseURL(t, "https://example.com/search?page=1"), []byte("<html><body>"+tt.body+"</body></html>"))
			require.NoError(t, err)
			require.Equal(t, tt.wantPage, state.Page)
			require.Equal(t, tt.wantNext, state.HasNext)
			require.Equal(t, tt.wantNext, state.NextURL != nil)
		})
	}
}

func TestParsePageStateRejectsEmptyInput(t *testing.T) {
	_, err := ParsePageState(nil, firstPageHTML)
	require.Error(t, err)

	_, err = ParsePageState(mustParseURL(t, fixtureURL), []byte("   "))
	var markupErr *MarkupError
	require.ErrorAs(t, err, &markupErr)
}

func TestPageResultRecordsAreRepeatable(t *testing.T) {
	page, err := NewPageResult(mustParseURL(t, fixtureURL), firstPageHTML)
	require.NoError(t, err)

	first, err := page.Records()
	require.NoError(t, err)
	second, err := page.Records()
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first, 2)

	require.Equal(t, 1, page.Page())
	require.True(t, page.HasNext())
	require.False(t, page.HasPrev())
	require.Nil(t, page.PrevURL())
	require.Equal(t, fixtureURL, page.URL().String())
}

func TestPageResultOwnsItsState(t *testing.T) {
	body := append([]byte(nil), firstPageHTML...)
	page, err := NewPageResult(mustParseURL(t, fixtureURL), body)
	require.NoError(t, err)

	for i := range body {
		body[i] = ' '
	}
	next := page.NextURL()
	next.RawQuery = "page=99"

	require.Equal(t, "searchNarrator=Jordi+Salas&sort=title-asc-rank&pageSize=50&page=2", page.NextURL().RawQuery)
	records, err := page.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestPageResultJSONOmitsBody(t *testing.T) {
	page, err := NewPageResult(mustParseURL(t, fixtureURL), firstPageHTML)
	require.NoError(t, err)

	data, err := json.Marshal(page)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.ElementsMatch(t,
		[]string{"page", "hasNext", "hasPrev", "nextPageUrl", "prevPageUrl", "url"},
		keys(decoded),
	)
	require.Nil(t, decoded["prevPageUrl"])
	require.Equal(t, float64(1), decoded["page"])
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
