// ABOUTME: Time-range grammar for since/until tool arguments
// ABOUTME: Accepts epoch seconds, YYYY-MM-DD, today, yesterday and "<N><unit> ago"

package tools

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Bound says which end of a range a value is for. Day-granular values resolve
// to the start of the day for a lower bound and the end of the day for an upper one.
type Bound int

const (
	LowerBound Bound = iota
	UpperBound
)

var relativePattern = regexp.MustCompile(`^(\d+)\s*([smhdw])\s*ago$`)

var unitDurations = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
	"w": 7 * 24 * time.Hour,
}

// ParseTime resolves value to epoch seconds relative to now in loc. Errors
// name the field.
func ParseTime(field, value string, bound Bound, now time.Time, loc *time.Location) (int64, error) {
	if loc == nil {
		loc = time.Local
	}
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return 0, invalidf("invalid %s", field)
	}

	if strings.TrimLeft(v, "0123456789") == "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, invalidf("invalid %s", field)
		}
		return secs, nil
	}

	now = now.In(loc)
	switch v {
	case "today":
		return dayBound(now, bound), nil
	case "yesterday":
		return dayBound(now.AddDate(0, 0, -1), bound), nil
	}

	if day, err := time.ParseInLocation(time.DateOnly, v, loc); err == nil {
		return dayBound(day, bound), nil
	}

	if m := relativePattern.FindStringSubmatch(v); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || n <= 0 {
			return 0, invalidf("invalid %s", field)
		}
		return now.Add(-time.Duration(n) * unitDurations[m[2]]).Unix(), nil
	}

	return 0, invalidf("invalid %s", field)
}

func dayBound(t time.Time, bound Bound) int64 {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	if bound == UpperBound {
		return start.AddDate(0, 0, 1).Unix() - 1
	}
	return start.Unix()
}

// timeRange reads optional since/until arguments.
func timeRange(a Args, now time.Time, loc *time.Location) (since, until *int64, err error) {
	if a.Has("since") {
		v, err := ParseTime("since", a.String("since"), LowerBound, now, loc)
		if err != nil {
			return nil, nil, err
		}
		since = &v
	}
	if a.Has("until") {
		v, err := ParseTime("until", a.String("until"), UpperBound, now, loc)
		if err != nil {
			return nil, nil, err
		}
		until = &v
	}
	if since != nil && until != nil && *since > *until {
		return nil, nil, invalidf("invalid since: after until")
	}
	return since, until, nil
}
