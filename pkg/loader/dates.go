package loader

import (
	"strconv"
	"strings"
	"time"
)

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Day-first layouts. Single-digit day and month are accepted.
var dayFirstLayouts = []string{
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
}

// ParseDate accepts ISO 8601 variants, DD/MM/YYYY (optionally with a time),
// and unix timestamps in seconds or milliseconds. Anything else returns the
// zero time, which callers treat as "no date"; it never fails. Inputs without
// a zone are read as UTC.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}

	if isDigits(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}
		}
		return fromEpoch(n)
	}

	layouts := isoLayouts
	if i := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }); i == 1 || i == 2 {
		layouts = dayFirstLayouts
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ParseDateEnd parses s like ParseDate for use as an inclusive upper bound.
// A date without a time of day resolves to the last instant of that day.
func ParseDateEnd(s string) time.Time {
	t := ParseDate(s)
	s = strings.TrimSpace(s)
	if t.IsZero() || isDigits(s) || strings.Contains(s, ":") {
		return t
	}
	return t.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// fromEpoch interprets n as milliseconds when it is too large to be seconds.
func fromEpoch(n int64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n >= 100_000_000_000 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
