package market

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"jun": time.June, "jul": time.July, "aug": time.August, "sep": time.September,
	"sept": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

type datePattern struct {
	re    *regexp.Regexp
	parse func(m []string, now time.Time) (time.Time, bool)
}

// Patterns are tried in order; the first that matches and yields a real
// calendar date wins.
var datePatterns = []datePattern{
	{
		re: regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`),
		parse: func(m []string, _ time.Time) (time.Time, bool) {
			return makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
		},
	},
	{
		re: regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2}|\d{4}))?\b`),
		parse: func(m []string, now time.Time) (time.Time, bool) {
			month, day := atoi(m[1]), atoi(m[2])
			if m[3] == "" {
				return inferYear(time.Month(month), day, now)
			}
			year := atoi(m[3])
			if year < 100 {
				year += 2000
			}
			return makeDate(year, month, day)
		},
	},
	{
		re:    regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4}))?`),
		parse: monthDay,
	},
	{
		re:    regexp.MustCompile(`\b(jan|feb|mar|apr|may|jun|jul|aug|sept|sep|oct|nov|dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4}))?`),
		parse: monthDay,
	},
}

// dateFromText extracts a settlement date from lowercased question text.
func dateFromText(text string, now time.Time) (string, bool) {
	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if d, ok := p.parse(m, now); ok {
			return d.Format(dateLayout), true
		}
	}
	return "", false
}

func monthDay(m []string, now time.Time) (time.Time, bool) {
	month, ok := monthNames[m[1]]
	if !ok {
		return time.Time{}, false
	}
	day := atoi(m[2])
	if m[3] != "" {
		return makeDate(atoi(m[3]), int(month), day)
	}
	return inferYear(month, day, now)
}

// inferYear places a month/day in the scan year, rolling into the next year
// when that date is more than half a year behind now (a January market seen
// in December).
func inferYear(month time.Month, day int, now time.Time) (time.Time, bool) {
	d, ok := makeDate(now.Year(), int(month), day)
	if !ok {
		return time.Time{}, false
	}
	if now.Sub(d) > 183*24*time.Hour {
		return makeDate(now.Year()+1, int(month), day)
	}
	return d, true
}

// makeDate rejects dates time.Date would normalize (Feb 30, month 13).
func makeDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || int(d.Month()) != month {
		return time.Time{}, false
	}
	return d, true
}

// truncateDate reduces a timestamp-ish end date value to its calendar date.
func truncateDate(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC().Format(dateLayout), true
		}
		if len(s) >= 10 {
			if t, err := time.Parse(dateLayout, s[:10]); err == nil {
				return t.Format(dateLayout), true
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
			return time.UnixMilli(ms).UTC().Format(dateLayout), true
		}
	case float64:
		if x > 0 {
			return time.UnixMilli(int64(x)).UTC().Format(dateLayout), true
		}
	case int64:
		if x > 0 {
			return time.UnixMilli(x).UTC().Format(dateLayout), true
		}
	case time.Time:
		if !x.IsZero() {
			return x.UTC().Format(dateLayout), true
		}
	}
	return "", false
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
