package router

import (
	"regexp"
	"strings"
	"time"
)

// timeRange is the resolved time scope of a metrics question.
type timeRange struct {
	Month    int
	Year     int
	DateFrom string
	DateTo   string
}

var (
	yearPattern    = regexp.MustCompile(`\b(20\d{2})\b`)
	quarterPattern = regexp.MustCompile(`\bq([1-4])\b`)
)

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// parseTimeRange resolves natural time expressions in a lowercased metrics
// question relative to now. Unrecognized text yields the zero range, meaning
// all time.
func parseTimeRange(norm string, now time.Time) timeRange {
	today := now

	day := func(t time.Time) string { return t.Format("2006-01-02") }

	switch {
	case strings.Contains(norm, "last week"), strings.Contains(norm, "past week"),
		strings.Contains(norm, "last 7 days"), strings.Contains(norm, "past 7 days"):
		return timeRange{DateFrom: day(today.AddDate(0, 0, -7)), DateTo: day(today)}

	case strings.Contains(norm, "last 30 days"), strings.Contains(norm, "past 30 days"),
		strings.Contains(norm, "past month"):
		return timeRange{DateFrom: day(today.AddDate(0, 0, -30)), DateTo: day(today)}

	case strings.Contains(norm, "this week"):
		// Week starts on Monday.
		offset := (int(today.Weekday()) + 6) % 7
		return timeRange{DateFrom: day(today.AddDate(0, 0, -offset)), DateTo: day(today)}

	case strings.Contains(norm, "this month"):
		return timeRange{Month: int(today.Month()), Year: today.Year()}

	case strings.Contains(norm, "last month"):
		prev := today.AddDate(0, -1, -today.Day()+1)
		return timeRange{Month: int(prev.Month()), Year: prev.Year()}

	case strings.Contains(norm, "this year"):
		return timeRange{Year: today.Year()}
	}

	if m := quarterPattern.FindStringSubmatch(norm); m != nil {
		year := today.Year()
		if y := yearPattern.FindString(norm); y != "" {
			year = mustAtoi(y)
		}
		starts := map[string][2]string{
			"1": {"-01-01", "-03-31"},
			"2": {"-04-01", "-06-30"},
			"3": {"-07-01", "-09-30"},
			"4": {"-10-01", "-12-31"},
		}
		s := starts[m[1]]
		y := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006")
		return timeRange{DateFrom: y + s[0], DateTo: y + s[1]}
	}

	// "in December", "December 2025".
	for name, month := range monthNames {
		if containsWord(norm, name) {
			tr := timeRange{Month: int(month), Year: today.Year()}
			if y := yearPattern.FindString(norm); y != "" {
				tr.Year = mustAtoi(y)
			}
			return tr
		}
	}

	if y := yearPattern.FindString(norm); y != "" {
		return timeRange{Year: mustAtoi(y)}
	}
	return timeRange{}
}

func mustAtoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
