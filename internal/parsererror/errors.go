// Package parsererror holds the typed errors raised while turning
// external text (emails, CSV rows) into typed values.
package parsererror

import (
	"fmt"
	"strings"
)

// ParseError represents an error during parsing
type ParseError struct {
	Parser string
	Field  string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: failed to parse %s='%s': %v",
		e.Parser, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// RowError records why a single tabular row was dropped.
type RowError struct {
	Row    int
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// NoValidRecordsError is returned when a batch yields zero usable rows.
// Nothing is written when it is returned.
type NoValidRecordsError struct {
	Source          string
	ExpectedColumns []string
	ExpectedFormat  string
	Dropped         []RowError
}

func (e *NoValidRecordsError) Error() string {
	msg := fmt.Sprintf("no valid records in %s: expected columns %s with format %s",
		e.Source, strings.Join(e.ExpectedColumns, ", "), e.ExpectedFormat)
	if n := len(e.Dropped); n > 0 {
		msg += fmt.Sprintf(" (%d rows dropped, first: %s)", n, e.Dropped[0].Error())
	}
	return msg
}

// InvalidFormatError represents an error where the input does not conform
// to the expected layout (missing header, unknown delimiter, missing columns).
type InvalidFormatError struct {
	Source         string
	ExpectedFormat string
	Msg            string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid format in '%s': %s. Expected: %s",
		e.Source, e.Msg, e.ExpectedFormat)
}

// CategorizationError represents a categorization failure
type CategorizationError struct {
	Transaction string
	Strategy    string
	Err         error
}

func (e *CategorizationError) Error() string {
	return fmt.Sprintf("categorization failed for %s using %s: %v",
		e.Transaction, e.Strategy, e.Err)
}

func (e *CategorizationError) Unwrap() error {
	return e.Err
}
