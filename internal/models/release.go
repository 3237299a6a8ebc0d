package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseReleaseDate normalizes the release date forms services return into a calendar date.
//
// Accepted inputs are nil or "" (no date), "YYYY", "YYYY-MM", "YYYY-MM-DD", [time.Time] and *[time.Time].
// Missing month and day default to the first. The result is midnight UTC.
func ParseReleaseDate(v any) (*time.Time, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return dateOf(d), nil
	case *time.Time:
		if d == nil {
			return nil, nil
		}
		return dateOf(*d), nil
	case string:
		return parseDateString(d)
	default:
		return nil, fmt.Errorf("unsupported release date type %T", v)
	}
}

func dateOf(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

func parseDateString(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, "-")
	if len(parts) > 3 {
		return nil, fmt.Errorf("invalid release date %q", s)
	}

	fields := [3]int{0, 1, 1}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid release date %q: %w", s, err)
		}
		fields[i] = n
	}

	year, month, day := fields[0], fields[1], fields[2]
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid release month in %q", s)
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return nil, fmt.Errorf("invalid release day in %q", s)
	}
	return &t, nil
}
