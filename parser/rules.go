// Package parser extracts pagination state and audiobook records from
// catalog search-results pages.
package parser

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// RuleSet maps each extracted field to the selector or attribute that
// locates it. Site markup changes are absorbed here; the traversal and
// extraction algorithms do not hard-code selectors.
type RuleSet struct {
	// PageNumber holds the current page index. The catalog does not
	// render it on the first page.
	PageNumber string
	NextButton string
	PrevButton string
	// DisabledAttr marks a pagination control that must not be followed.
	DisabledAttr string

	Item         string
	SampleButton string
	SampleAttr   string
	// TitleAttr is read from the item node itself.
	TitleAttr   string
	Narrator    string
	Language    string
	ReleaseDate string
}

// DefaultRules returns the rule set for the audible.es search listing.
func DefaultRules() RuleSet {
	return RuleSet{
		PageNumber:   "span.pageNumberElement",
		NextButton:   ".nextButton a",
		PrevButton:   ".previousButton a",
		DisabledAttr: "aria-disabled",
		Item:         "li.productListItem",
		SampleButton: "button[data-mp3]",
		SampleAttr:   "data-mp3",
		TitleAttr:    "aria-label",
		Narrator:     "li.narratorLabel span.bc-text a",
		Language:     "li.languageLabel span.bc-text",
		ReleaseDate:  "li.releaseDateLabel span.bc-text",
	}
}

// Validate compiles every selector and checks that attribute names are set.
func (r RuleSet) Validate() error {
	selectors := []struct {
		name, value string
	}{
		{"page number", r.PageNumber},
		{"next button", r.NextButton},
		{"previous button", r.PrevButton},
		{"item", r.Item},
		{"sample button", r.SampleButton},
		{"narrator", r.Narrator},
		{"language", r.Language},
		{"release date", r.ReleaseDate},
	}
	for _, s := range selectors {
		if s.value == "" {
			return fmt.Errorf("rule %s: selector is empty", s.name)
		}
		if _, err := cascadia.Compile(s.value); err != nil {
			return fmt.Errorf("rule %s: compile %q: %w", s.name, s.value, err)
		}
	}

	attrs := []struct {
		name, value string
	}{
		{"disabled attribute", r.DisabledAttr},
		{"sample attribute", r.SampleAttr},
		{"title attribute", r.TitleAttr},
	}
	for _, a := range attrs {
		if a.value == "" {
			return fmt.Errorf("rule %s: attribute name is empty", a.name)
		}
	}
	return nil
}

var errEmptyBody = errors.New("empty body")

// newDocument parses body into a fresh DOM. No parser state is shared
// between calls.
func newDocument(body []byte) (*goquery.Document, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &MarkupError{Err: errEmptyBody}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &MarkupError{Err: err}
	}
	return doc, nil
}
