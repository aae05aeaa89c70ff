package models

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ISODate is the layout every normalized calendar date is rendered with
const ISODate = "2006-01-02"

// DatePattern names one of the accepted input date shapes
type DatePattern string

const (
	PatternDayMonthYearSlash DatePattern = "DD/MM/YYYY"
	PatternISO               DatePattern = "YYYY-MM-DD"
	PatternDayMonthYearDash  DatePattern = "DD-MM-YYYY"
	PatternCompact           DatePattern = "DDMMYYYY"
)

// ParsedDate is the tagged result of NormalizeDate. When Valid is false the
// input matched no accepted pattern (or named an impossible calendar day) and
// Time must not be used.
type ParsedDate struct {
	Valid   bool
	Time    time.Time
	Pattern DatePattern
}

// ISO returns the date as YYYY-MM-DD, or an empty string for an invalid result
func (p ParsedDate) ISO() string {
	if !p.Valid {
		return ""
	}
	return p.Time.Format(ISODate)
}

type datePattern struct {
	name  DatePattern
	re    *regexp.Regexp
	order [3]int // submatch index of day, month, year
}

// Accepted patterns, tried in order.
var datePatterns = []datePattern{
	{PatternDayMonthYearSlash, regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`), [3]int{1, 2, 3}},
	{PatternISO, regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`), [3]int{3, 2, 1}},
	{PatternDayMonthYearDash, regexp.MustCompile(`(\d{1,2})-(\d{1,2})-(\d{4})`), [3]int{1, 2, 3}},
	{PatternCompact, regexp.MustCompile(`^(\d{2})(\d{2})(\d{4})$`), [3]int{1, 2, 3}},
}

// NormalizeDate parses a calendar date written in any accepted pattern.
// Surrounding text (a trailing time, for instance) is ignored.
func NormalizeDate(raw string) ParsedDate {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedDate{}
	}

	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		day, _ := strconv.Atoi(m[p.order[0]])
		month, _ := strconv.Atoi(m[p.order[1]])
		year, _ := strconv.Atoi(m[p.order[2]])

		if t, ok := civilDate(year, month, day); ok {
			return ParsedDate{Valid: true, Time: t, Pattern: p.name}
		}
	}

	return ParsedDate{}
}

// civilDate builds a UTC midnight date, rejecting days that time.Date would roll over
func civilDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// Date returns the UTC midnight of the given calendar day
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// CalendarDay strips the time component of t, keeping its calendar day
func CalendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate renders t as YYYY-MM-DD; the zero time renders as an empty string
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(ISODate)
}

// DaysBetween returns the absolute number of calendar days between a and b
func DaysBetween(a, b time.Time) int {
	diff := CalendarDay(a).Sub(CalendarDay(b))
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}
