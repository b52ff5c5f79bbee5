// Package extract turns free-text date/time/location strings into structured
// values. All clock times are interpreted in the configured civic timezone,
// never in the timezone of the executing process.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"city_ingest/internal/apperr"
	"city_ingest/internal/fetch"
)

// Result is the structured outcome of one extraction. End is informational:
// only the start instant is required for correctness downstream.
type Result struct {
	Start    time.Time
	End      *time.Time
	Location string
}

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

const (
	monthPat = `(January|February|March|April|May|June|July|August|September|October|November|December)`
	datePat  = monthPat + `\s+(\d{1,2}),\s*(\d{4})`
	timePat  = `(\d{1,2}):(\d{2})\s*(AM|PM)`
	locPat   = `(?:\s*@\s*(.+?))?`
)

// A variant pairs one anchored pattern with the function that builds a Result
// from its submatches. Variants are evaluated in order; the first full match
// wins. Patterns compile case-insensitively so month names match regardless
// of casing.
type variant struct {
	pattern *regexp.Regexp
	build   func(m []string, loc *time.Location) (Result, error)
}

func compile(pat string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + pat)
}

var variants = []variant{
	// Single date, single time, optional trailing location.
	{
		pattern: compile(`^` + datePat + `,\s*` + timePat + locPat + `\s*$`),
		build: func(m []string, loc *time.Location) (Result, error) {
			start, err := civilTime(m[1], m[2], m[3], m[4], m[5], m[6], loc)
			if err != nil {
				return Result{}, err
			}
			return Result{Start: start, Location: strings.TrimSpace(m[7])}, nil
		},
	},
	// Single date, same-day time range, optional trailing location.
	{
		pattern: compile(`^` + datePat + `,\s*` + timePat + `\s*[-–]\s*` + timePat + locPat + `\s*$`),
		build: func(m []string, loc *time.Location) (Result, error) {
			start, err := civilTime(m[1], m[2], m[3], m[4], m[5], m[6], loc)
			if err != nil {
				return Result{}, err
			}
			end, err := civilTime(m[1], m[2], m[3], m[7], m[8], m[9], loc)
			if err != nil {
				return Result{}, err
			}
			return Result{Start: start, End: &end, Location: strings.TrimSpace(m[10])}, nil
		},
	},
	// Multi-day range: start date+time through end date+time. Only the start
	// instant matters; the parsed end is carried along as-is.
	{
		pattern: compile(`^` + datePat + `,\s*` + timePat + `\s*[-–]\s*` + datePat + `,\s*` + timePat + locPat + `\s*$`),
		build: func(m []string, loc *time.Location) (Result, error) {
			start, err := civilTime(m[1], m[2], m[3], m[4], m[5], m[6], loc)
			if err != nil {
				return Result{}, err
			}
			end, err := civilTime(m[7], m[8], m[9], m[10], m[11], m[12], loc)
			if err != nil {
				return Result{}, err
			}
			return Result{Start: start, End: &end, Location: strings.TrimSpace(m[13])}, nil
		},
	},
}

// Extract applies the ordered pattern variants to text. A non-matching input
// yields a *apperr.ParseError, never a panic.
func Extract(text string, loc *time.Location) (Result, error) {
	cleaned := fetch.CollapseWhitespace(text)
	if cleaned == "" {
		return Result{}, &apperr.ParseError{Input: text, Reason: "empty date/time text"}
	}

	for _, v := range variants {
		m := v.pattern.FindStringSubmatch(cleaned)
		if m == nil {
			continue
		}
		res, err := v.build(m, loc)
		if err != nil {
			return Result{}, err
		}
		return res, nil
	}

	return Result{}, &apperr.ParseError{Input: cleaned, Reason: "no date/time pattern matched"}
}

// civilTime builds a time.Time in the civic location from regex captures.
func civilTime(month, day, year, hour, minute, ampm string, loc *time.Location) (time.Time, error) {
	mon, ok := months[strings.ToLower(month)]
	if !ok {
		return time.Time{}, &apperr.ParseError{Input: month, Reason: "unknown month name"}
	}

	d, _ := strconv.Atoi(day)
	y, _ := strconv.Atoi(year)
	h, _ := strconv.Atoi(hour)
	min, _ := strconv.Atoi(minute)

	if d < 1 || d > 31 {
		return time.Time{}, &apperr.ParseError{Input: day, Reason: "day out of range"}
	}
	if h < 1 || h > 12 {
		return time.Time{}, &apperr.ParseError{Input: hour, Reason: "hour out of 12-hour range"}
	}
	if min > 59 {
		return time.Time{}, &apperr.ParseError{Input: minute, Reason: "minute out of range"}
	}

	// 12-hour to 24-hour.
	switch strings.ToUpper(ampm) {
	case "AM":
		if h == 12 {
			h = 0
		}
	case "PM":
		if h != 12 {
			h += 12
		}
	}

	t := time.Date(y, mon, d, h, min, 0, 0, loc)
	// time.Date normalizes overflow (February 31 -> March 3); a rolled-over
	// date means the text named a day the month does not have.
	if t.Month() != mon || t.Day() != d {
		return time.Time{}, &apperr.ParseError{Input: month + " " + day, Reason: "day out of range for month"}
	}
	return t, nil
}
