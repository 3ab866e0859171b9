package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrNoItemsFound means the page rendered no product entries at all.
	ErrNoItemsFound = errors.New("no items found")
	// ErrDateNotFound means a date label had no dd-mm-yy pattern.
	ErrDateNotFound = errors.New("date not found")
)

// Required record fields, as reported by FieldMissingError.
const (
	FieldTitle     = "title"
	FieldNarrator  = "narrator"
	FieldLanguage  = "language"
	FieldSampleURL = "sampleUrl"
)

// FieldMissingError reports a required field absent on an item that
// carries a sample-audio control.
type FieldMissingError struct {
	Field string
	// Index is the zero-based position of the item on the page.
	Index int
}

func (e *FieldMissingError) Error() string {
	return fmt.Sprintf("item %d: field %q missing", e.Index, e.Field)
}

// InvalidURLError reports a sample URL that is not a valid absolute URL.
type InvalidURLError struct {
	Index int
	Value string
	Err   error
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("item %d: invalid sample url %q: %v", e.Index, e.Value, e.Err)
}

func (e *InvalidURLError) Unwrap() error {
	return e.Err
}

// DateParseError reports a dd-mm-yy pattern that is not a calendar date.
type DateParseError struct {
	Text string
	Err  error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("parse date %q: %v", e.Text, e.Err)
}

func (e *DateParseError) Unwrap() error {
	return e.Err
}

// ItemError attaches the item position to a failure raised while
// extracting one of its optional fields.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// MarkupError reports a body that could not be turned into a document.
type MarkupError struct {
	Err error
}

func (e *MarkupError) Error() string {
	return fmt.Sprintf("parse markup: %v", e.Err)
}

func (e *MarkupError) Unwrap() error {
	return e.Err
}

// IsFieldMissing reports whether err is a FieldMissingError for field.
// An empty field matches any missing field.
func IsFieldMissing(err error, field string) bool {
	var missing *FieldMissingError
	if !errors.As(err, &missing) {
		return false
	}
	return field == "" || missing.Field == field
}
