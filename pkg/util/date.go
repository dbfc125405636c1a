package util

import (
	"strings"
	"time"
)

// DateLayout is the calendar-day format used in logs and the CLI.
const DateLayout = "2006-01-02"

// TradingDay returns the calendar day of t in loc as UTC midnight.
func TradingDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// NextDay returns the UTC midnight after d.
func NextDay(d time.Time) time.Time {
	d = d.UTC()
	return time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, time.UTC)
}

// MonthsBefore steps d back n calendar months, normalized like time.AddDate.
func MonthsBefore(d time.Time, n int) time.Time {
	return d.AddDate(0, -n, 0)
}

// FormatDate renders a calendar day, empty for the zero time.
func FormatDate(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return d.UTC().Format(DateLayout)
}

// ParseDate accepts YYYY-MM-DD or RFC3339 and returns UTC midnight.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return TradingDay(t, time.UTC), true
	}
	return time.Time{}, false
}

// SplitList splits a comma separated list, trimming blanks and upper-casing.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
