package parser

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-audiobooks/models"
	"github.com/stretchr/testify/require"
)

func TestExtractRecordsFirstPage(t *testing.T) {
	records, stats, err := DefaultRules().ExtractRecordsWithStats(firstPageHTML)
	require.NoError(t, err)
	require.Equal(t, ExtractStats{Items: 3, Skipped: 1}, stats)
	require.Len(t, records, 2)

	first := records[0]
	require.Equal(t, "1793 (Spanish Edition)", first.Title)
	require.Equal(t, "Jordi Salas", first.Narrator)
	require.Equal(t, "Español (Castellano)", first.Language)
	require.NotNil(t, first.ReleaseDate)
	require.Equal(t, models.NewDate(2021, time.May, 12), *first.ReleaseDate)
	require.Equal(t, "https://samples.audible.com/bk/rhsp/002067/bk_rhsp_002067_sample.mp3", first.SampleURL)

	second := records[1]
	require.Equal(t, "Rock & Roll", second.Title)
	require.Equal(t, "Jordi Salas", second.Narrator)
	require.Nil(t, second.ReleaseDate, "absent release date is not an error")
}

func TestExtractRecordsLastPage(t *testing.T) {
	records, err := ExtractRecords(lastPageHTML)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Español (Castellano)", records[0].Language)
	require.Equal(t, models.NewDate(1999, time.February, 1), *records[0].ReleaseDate)
}

func TestExtractRecordsNoItems(t *testing.T) {
	records, err := ExtractRecords(emptyPageHTML)
	require.ErrorIs(t, err, ErrNoItemsFound)
	require.Nil(t, records)
}

func TestExtractRecordsMissingNarratorFailsWholePage(t *testing.T) {
	records, err := ExtractRecords(missingNarratorHTML)
	require.Nil(t, records)

	var missing *FieldMissingError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, FieldNarrator, missing.Field)
	require.Equal(t, 1, missing.Index)
	require.True(t, IsFieldMissing(err, FieldNarrator))
	require.False(t, IsFieldMissing(err, FieldTitle))
}

func TestExtractRecordsFieldFailures(t *testing.T) {
	const narrator = `<li class="narratorLabel"><span class="bc-text"><a href="/n">Jordi Salas</a></span></li>`
	const language = `<li class="languageLabel"><span class="bc-text">Español</span></li>`
	const button = `<button data-mp3="https://samples.example.test/a.mp3">Play</button>`

	item := func(attrs, inner string) string {
		return `<html><body><ul><li class="productListItem" ` + attrs + `><ul>` + inner + `</ul></li></ul></body></html>`
	}

	tests := []struct {
		name      string
		body      string
		wantField string
		wantErr   func(t *testing.T, err error)
	}{
		{
			name:      "missing title",
			body:      item(``, narrator+language+button),
			wantField: FieldTitle,
		},
		{
			name:      "blank title",
			body:      item(`aria-label="   "`, narrator+language+button),
			wantField: FieldTitle,
		},
		{
			name:      "missing language",
			body:      item(`aria-label="Uno"`, narrator+button),
			wantField: FieldLanguage,
		},
		{
			name:      "empty sample attribute",
			body:      item(`aria-label="Uno"`, narrator+language+`<button data-mp3="">Play</button>`),
			wantField: FieldSampleURL,
		},
		{
			name: "relative sample url",
			body: item(`aria-label="Uno"`, narrator+language+`<button data-mp3="/samples/a.mp3">Play</button>`),
			wantErr: func(t *testing.T, err error) {
				var invalid *InvalidURLError
				require.ErrorAs(t, err, &invalid)
				require.Equal(t, "/samples/a.mp3", invalid.Value)
			},
		},
		{
			name: "date label without date",
			body: item(`aria-label="Uno"`, narrator+language+button+`<li class="releaseDateLabel"><span class="bc-text">Próximamente</span></li>`),
			wantErr: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrDateNotFound)
				var itemErr *ItemError
				require.ErrorAs(t, err, &itemErr)
				require.Equal(t, 0, itemErr.Index)
			},
		},
		{
			name: "impossible date",
			body: item(`aria-label="Uno"`, narrator+language+button+`<li class="releaseDateLabel"><span class="bc-text">31-02-21</span></li>`),
			wantErr: func(t *testing.T, err error) {
				var parseErr *DateParseError
				require.ErrorAs(t, err, &parseErr)
				require.Equal(t, "31-02-21", parseErr.Text)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := ExtractRecords([]byte(tt.body))
			require.Error(t, err)
			require.Nil(t, records)
			if tt.wantField != "" {
				require.True(t, IsFieldMissing(err, tt.wantField), "got %v", err)
			}
			if tt.wantErr != nil {
				tt.wantErr(t, err)
			}
		})
	}
}

func TestExtractRecordsOnlyNonAudioItems(t *testing.T) {
	body := `<html><body><ul>
		<li class="productListItem" aria-label="Sin muestra"></li>
		<li class="productListItem" aria-label="Otro sin muestra"></li>
	</ul></body></html>`

	records, stats, err := DefaultRules().ExtractRecordsWithStats([]byte(body))
	require.NoError(t, err)
	require.Empty(t, records)
	require.Equal(t, ExtractStats{Items: 2, Skipped: 2}, stats)
}

func TestCustomRuleSet(t *testing.T) {
	rules := DefaultRules()
	rules.Item = "article.book"
	rules.SampleButton = "audio[data-src]"
	rules.SampleAttr = "data-src"
	rules.TitleAttr = "data-title"
	rules.Narrator = ".narrator"
	rules.Language = ".lang"
	require.NoError(t, rules.Validate())

	body := `<html><body>
		<article class="book" data-title="Uno">
			<span class="narrator">Ana</span><span class="lang">English</span>
			<audio data-src="https://cdn.example.test/uno.mp3"></audio>
		</article>
	</body></html>`

	records, err := rules.ExtractRecords([]byte(body))
	require.NoError(t, err)
	require.Equal(t, []models.Record{{
		Title:     "Uno",
		Narrator:  "Ana",
		Language:  "English",
		SampleURL: "https://cdn.example.test/uno.mp3",
	}}, records)
}

func TestRuleSetValidate(t *testing.T) {
	require.NoError(t, DefaultRules().Validate())

	broken := DefaultRules()
	broken.Narrator = "li.narratorLabel[["
	err := broken.Validate()
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "narrator"), "got %v", err)

	noAttr := DefaultRules()
	noAttr.SampleAttr = ""
	require.Error(t, noAttr.Validate())
}

func TestExtractDate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    models.Date
		wantErr error
	}{
		{
			name: "sentence",
			text: "Se publicó originalmente el 12-05-21",
			want: models.NewDate(2021, time.May, 12),
		},
		{
			name: "label with whitespace",
			text: "\n  Fecha de lanzamiento:\n  03-11-08\n",
			want: models.NewDate(2008, time.November, 3),
		},
		{
			name: "last century",
			text: "01-02-99",
			want: models.NewDate(1999, time.February, 1),
		},
		{
			name:    "no pattern",
			text:    "Fecha de lanzamiento: mayo 2021",
			wantErr: ErrDateNotFound,
		},
		{
			name:    "four digit year is not dd-mm-yy",
			text:    "12/05/2021",
			wantErr: ErrDateNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractDate(tt.text)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestExtractDateInvalidCalendarDate(t *testing.T) {
	_, err := ExtractDate("Publicado el 45-13-21")
	var parseErr *DateParseError
	require.ErrorAs(t, err, &parseErr)
	require.False(t, errors.Is(err, ErrDateNotFound))
}
