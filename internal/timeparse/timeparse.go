// Package timeparse resolves free-text time expressions ("tomorrow 3pm",
// "10am", "next week") into concrete timestamps. Parsing is an explicit
// ordered rule list evaluated deterministically: first match wins.
package timeparse

import (
	"regexp"
	"strconv"
	"time"
)

// DefaultHour is the clock time used when a relative-day keyword resolves
// a day but no clock time is found in the expression.
const DefaultHour = 9

// Resolution is the outcome of resolving an expression.
type Resolution struct {
	Time       time.Time
	DayKeyword bool // a relative-day keyword matched
	ClockFound bool // an explicit clock time matched
}

// dayRule maps a relative-day keyword to a day offset.
type dayRule struct {
	re     *regexp.Regexp
	offset int
}

// Day rules, evaluated in order; first match wins.
var dayRules = []dayRule{
	{regexp.MustCompile(`(?i)\btomorrow\b`), 1},
	{regexp.MustCompile(`(?i)\bnext\s+week\b`), 7},
	{regexp.MustCompile(`(?i)\btoday\b`), 0},
}

// clockRule extracts an hour and minute from a matched pattern.
type clockRule struct {
	re      *regexp.Regexp
	resolve func(match []string) (hour, minute int)
}

// Clock rules, evaluated in order: pm, then am, then bare 24-hour HH:MM.
var clockRules = []clockRule{
	{
		re: regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*pm\b`),
		resolve: func(m []string) (int, int) {
			h := atoi(m[1])
			if h != 12 {
				h += 12
			}
			return h, atoi(m[2])
		},
	},
	{
		re: regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*am\b`),
		resolve: func(m []string) (int, int) {
			h := atoi(m[1])
			if h == 12 {
				h = 0
			}
			return h, atoi(m[2])
		},
	},
	{
		re: regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`),
		resolve: func(m []string) (int, int) {
			return atoi(m[1]), atoi(m[2])
		},
	},
}

// Resolve resolves expr relative to now. Rules:
//
//   - "tomorrow" resolves to now+1 day, "next week" to now+7 days,
//     "today" or no keyword to the current day.
//   - The first matching clock pattern anywhere in the text sets the time
//     of day; 12pm stays 12, 12am becomes hour 0.
//   - With a day keyword but no clock time, the time defaults to 09:00.
//   - With neither, the result is one hour from now.
func Resolve(expr string, now time.Time) Resolution {
	res := Resolution{}

	offset := 0
	for _, r := range dayRules {
		if r.re.MatchString(expr) {
			offset = r.offset
			res.DayKeyword = true
			break
		}
	}

	hour, minute := -1, 0
	for _, r := range clockRules {
		if m := r.re.FindStringSubmatch(expr); m != nil {
			hour, minute = r.resolve(m)
			res.ClockFound = true
			break
		}
	}

	day := now.AddDate(0, 0, offset)

	switch {
	case res.ClockFound:
		res.Time = time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
	case res.DayKeyword:
		res.Time = time.Date(day.Year(), day.Month(), day.Day(), DefaultHour, 0, 0, 0, now.Location())
	default:
		res.Time = now.Add(time.Hour)
	}
	return res
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}
