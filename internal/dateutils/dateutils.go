// Package dateutils provides the date parsing and calendar-day arithmetic
// used by the ledger.
package dateutils

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fjacquet/networth-sync/internal/parsererror"
)

// Common date format constants used throughout the application
const (
	DateLayoutISO       = "2006-01-02"
	DateLayoutLocalized = "02/01/2006"
	DateLayoutFull      = "2006-01-02 15:04:05"
)

var whitespace = regexp.MustCompile(`\s+`)

// ParseLocalizedDate parses a DD/MM/YYYY date at midnight in loc.
// Anything other than three numeric parts forming a real calendar date is
// rejected with a *parsererror.ParseError.
func ParseLocalizedDate(text string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	cleaned := CleanDateString(text)

	fail := func(reason string) (time.Time, error) {
		return time.Time{}, &parsererror.ParseError{
			Parser: "date",
			Field:  "date",
			Value:  text,
			Err:    errors.New(reason),
		}
	}

	parts := strings.Split(cleaned, "/")
	if len(parts) != 3 {
		return fail("expected DD/MM/YYYY")
	}

	nums := make([]int, 3)
	for i, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return fail(fmt.Sprintf("component %q is not numeric", p))
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return fail(err.Error())
		}
		nums[i] = n
	}

	day, month, year := nums[0], nums[1], nums[2]
	if year < 1 || month < 1 || month > 12 || day < 1 {
		return fail("date out of range")
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	// time.Date normalizes overflow (31/02 -> 02/03); reject instead.
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return fail("no such calendar day")
	}
	return t, nil
}

// StartOfDay returns the first instant of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns the last representable instant of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// DayKey identifies t's calendar day in loc as YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	return StartOfDay(t, loc).Format(DateLayoutISO)
}

// FormatDate formats a time.Time value according to the specified layout
// If no layout is provided, DateLayoutISO is used
func FormatDate(date time.Time, layout string) string {
	if layout == "" {
		layout = DateLayoutISO
	}
	return date.Format(layout)
}

// CleanDateString trims and collapses whitespace.
func CleanDateString(dateStr string) string {
	return whitespace.ReplaceAllString(strings.TrimSpace(dateStr), " ")
}
