package parser

import (
	"regexp"
	"time"

	"github.com/aluiziolira/go-scrape-audiobooks/models"
)

// The catalog renders release dates as dd-mm-yy inside a localized label,
// e.g. "Fecha de lanzamiento: 12-05-21".
var datePattern = regexp.MustCompile(`\d{2}-\d{2}-\d{2}`)

const labelDateLayout = "02-01-06"

// ExtractDate finds the first dd-mm-yy pattern in text and parses it.
// Two-digit years 69-99 map to 19xx, 00-68 to 20xx.
func ExtractDate(text string) (models.Date, error) {
	match := datePattern.FindString(text)
	if match == "" {
		return models.Date{}, ErrDateNotFound
	}
	t, err := time.Parse(labelDateLayout, match)
	if err != nil {
		return models.Date{}, &DateParseError{Text: match, Err: err}
	}
	return models.DateOf(t), nil
}
