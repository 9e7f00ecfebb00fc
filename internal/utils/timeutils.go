package utils

import (
	"fmt"
	"strings"
	"time"
)

var flexibleLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseFlexibleTime accepts RFC3339, a naive datetime, or a bare date (UTC).
func ParseFlexibleTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	for _, layout := range flexibleLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q: unsupported layout", value)
}

// MonthStarts returns the first instant of the n months ending at now's month,
// most recent first.
func MonthStarts(now time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	months := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		months = append(months, first.AddDate(0, -i, 0))
	}
	return months
}
