package parser

import (
	"errors"
	"html"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-audiobooks/models"
)

// ExtractStats counts the product items seen on a page.
type ExtractStats struct {
	Items int
	// Skipped items carried no sample-audio control.
	Skipped int
}

// ExtractRecords extracts records with DefaultRules.
func ExtractRecords(body []byte) ([]models.Record, error) {
	return DefaultRules().ExtractRecords(body)
}

// ExtractRecords returns the records on the page. See ExtractRecordsWithStats.
func (r RuleSet) ExtractRecords(body []byte) ([]models.Record, error) {
	records, _, err := r.ExtractRecordsWithStats(body)
	return records, err
}

// ExtractRecordsWithStats returns every record on the page along with item
// counts. A page with no product items fails with ErrNoItemsFound. Items
// without a sample-audio control are skipped. Any other item missing a
// required field fails the whole page and no records are returned.
func (r RuleSet) ExtractRecordsWithStats(body []byte) ([]models.Record, ExtractStats, error) {
	doc, err := newDocument(body)
	if err != nil {
		return nil, ExtractStats{}, err
	}

	items := doc.Find(r.Item)
	stats := ExtractStats{Items: items.Length()}
	if stats.Items == 0 {
		return nil, stats, ErrNoItemsFound
	}

	records := make([]models.Record, 0, stats.Items)
	var extractErr error
	items.EachWithBreak(func(i int, item *goquery.Selection) bool {
		button := item.Find(r.SampleButton).First()
		if button.Length() == 0 {
			stats.Skipped++
			return true
		}
		record, err := r.extractRecord(i, item, button)
		if err != nil {
			extractErr = err
			return false
		}
		records = append(records, record)
		return true
	})
	if extractErr != nil {
		return nil, stats, extractErr
	}
	return records, stats, nil
}

func (r RuleSet) extractRecord(index int, item, button *goquery.Selection) (models.Record, error) {
	sample, ok := button.Attr(r.SampleAttr)
	sample = strings.TrimSpace(sample)
	if !ok || sample == "" {
		return models.Record{}, &FieldMissingError{Field: FieldSampleURL, Index: index}
	}
	sampleURL, err := parseAbsoluteURL(sample)
	if err != nil {
		return models.Record{}, &InvalidURLError{Index: index, Value: sample, Err: err}
	}

	// The catalog escapes the label twice; the DOM parser undoes one level.
	title, _ := item.Attr(r.TitleAttr)
	title = normalizeText(html.UnescapeString(title))
	if title == "" {
		return models.Record{}, &FieldMissingError{Field: FieldTitle, Index: index}
	}

	narrator := firstText(item, r.Narrator)
	if narrator == "" {
		return models.Record{}, &FieldMissingError{Field: FieldNarrator, Index: index}
	}

	language := firstText(item, r.Language)
	if language == "" {
		return models.Record{}, &FieldMissingError{Field: FieldLanguage, Index: index}
	}

	record := models.Record{
		Title:     title,
		Narrator:  narrator,
		Language:  language,
		SampleURL: sampleURL.String(),
	}

	if label := item.Find(r.ReleaseDate).First(); label.Length() > 0 {
		date, err := ExtractDate(label.Text())
		if err != nil {
			return models.Record{}, &ItemError{Index: index, Err: err}
		}
		record.ReleaseDate = &date
	}
	return record, nil
}

func firstText(item *goquery.Selection, selector string) string {
	return normalizeText(item.Find(selector).First().Text())
}

func parseAbsoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, errors.New("not an absolute url")
	}
	return u, nil
}
