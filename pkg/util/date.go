package util

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for bars and forecast targets.
const DateLayout = "2006-01-02"

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", DateLayout}

// ParseTime accepts RFC3339, "YYYY-MM-DD hh:mm:ss", YYYY-MM-DD and unix
// seconds. Layouts without a zone are read as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0).UTC(), true
	}
	return time.Time{}, false
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TrailingWindow returns the calendar range [from, to] of days days ending
// on to's date.
func TrailingWindow(to time.Time, days int) (from, end time.Time) {
	end = Day(to)
	if days < 1 {
		days = 1
	}
	return end.AddDate(0, 0, 1-days), end
}

// IsMonthEnd reports whether t falls on the last day of its month.
func IsMonthEnd(t time.Time) bool {
	return t.AddDate(0, 0, 1).Day() == 1
}
