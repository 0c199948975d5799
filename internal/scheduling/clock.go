package scheduling

import (
	"errors"
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date format")

// ParseDay parses a calendar date in YYYY-MM-DD form into a UTC midnight
// instant.
func ParseDay(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dayLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// dayOf truncates an instant to its UTC calendar date.
func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dayBounds returns the half-open [midnight, next midnight) range of a day.
func dayBounds(day time.Time) (time.Time, time.Time) {
	start := dayOf(day)
	return start, start.Add(24 * time.Hour)
}

// clockAt combines a calendar day with an "HH:MM" (or "HH:MM:SS") clock
// string into a UTC instant.
func clockAt(day time.Time, clock string) (time.Time, error) {
	var h, m int
	if _, err := fmt.Sscanf(clock, "%d:%d", &h, &m); err != nil {
		return time.Time{}, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return time.Time{}, fmt.Errorf("clock %q out of range", clock)
	}
	return dayOf(day).Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute), nil
}

// normalizeSlot drops seconds and sub-second precision so generator output
// and confirm input always compare equal.
func normalizeSlot(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}
