package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-scrape-audiobooks/models"
)

var innerWhitespace = regexp.MustCompile(`\s+`)

// normalizeText trims the text and collapses inner whitespace runs.
func normalizeText(text string) string {
	return innerWhitespace.ReplaceAllString(strings.TrimSpace(text), " ")
}

// ValidateRecord ensures the record carries every required field.
func ValidateRecord(r *models.Record) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("record missing title")
	}
	if strings.TrimSpace(r.Narrator) == "" {
		return fmt.Errorf("record missing narrator for %s", r.Title)
	}
	if strings.TrimSpace(r.Language) == "" {
		return fmt.Errorf("record missing language for %s", r.Title)
	}
	if strings.TrimSpace(r.SampleURL) == "" {
		return fmt.Errorf("record missing sample url for %s", r.Title)
	}
	if _, err := parseAbsoluteURL(r.SampleURL); err != nil {
		return fmt.Errorf("record %s has invalid sample url: %w", r.Title, err)
	}
	return nil
}

// SampleKey returns the dedupe key of a record: its sample URL without
// query string or fragment.
func SampleKey(r *models.Record) string {
	u, err := url.Parse(r.SampleURL)
	if err != nil {
		return r.SampleURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
