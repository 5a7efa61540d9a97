// Package timeutil formats and parses the timestamp strings
// stored in contact and conversation records.
package timeutil

import (
	"strings"
	"time"
)

// Layout is the fixed-width UTC layout used for every stored
// timestamp. Fixed width keeps string comparison chronological,
// which the SQL range predicates depend on.
const Layout = "2006-01-02T15:04:05.000Z"

// DateLayout is the calendar-day layout used for daily buckets.
const DateLayout = "2006-01-02"

// parseLayouts are tried in order by Parse.
var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	DateLayout,
}

// Format returns t in the stored layout, or "" for the zero time.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(Layout)
}

// Ptr returns a pointer to the formatted time, or nil for the
// zero time.
func Ptr(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := Format(t)
	return &s
}

// Parse is a best-effort parse of a stored or user-supplied
// timestamp. Layouts without an offset are read as UTC.
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseIn is like Parse but reads offset-less layouts in loc.
func ParseIn(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Normalize rewrites a parseable timestamp into the stored
// layout. Unparseable input is returned unchanged so the raw
// value survives a round trip.
func Normalize(s string) string {
	t, ok := Parse(s)
	if !ok {
		return s
	}
	return Format(t)
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// IsDateOnly reports whether s is a bare YYYY-MM-DD date.
func IsDateOnly(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != len(DateLayout) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
