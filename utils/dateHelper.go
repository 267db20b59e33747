package utils

import (
	"fmt"
	"strings"
	"time"
)

// Legacy importers wrote correction timestamps in a handful of layouts,
// sometimes with a "-0300" offset without colon, sometimes naive.
var flexibleLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseFlexibleTime parses any of the timestamp layouts found in the
// historical data. Naive values are taken as UTC.
func ParseFlexibleTime(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range flexibleLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			if t.Location() == time.Local {
				t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp layout: %q", value)
}

// MonthsBetween counts calendar months from 'from' to 'to', ignoring days.
func MonthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

// PeriodKey formats a (year, month) pair as "MM/YYYY".
func PeriodKey(year, month int) string {
	return fmt.Sprintf("%02d/%04d", month, year)
}

// ParsePeriodKey is the inverse of PeriodKey.
func ParsePeriodKey(period string) (year, month int, err error) {
	if _, err = fmt.Sscanf(strings.TrimSpace(period), "%02d/%04d", &month, &year); err != nil {
		return 0, 0, fmt.Errorf("bad period %q: %w", period, err)
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("bad period %q: month out of range", period)
	}
	return year, month, nil
}

// ShiftPeriod applies a month offset to a (year, month) pair with year
// rollover in both directions.
func ShiftPeriod(year, month, offset int) (int, int) {
	m := month + offset
	for m < 1 {
		m += 12
		year--
	}
	for m > 12 {
		m -= 12
		year++
	}
	return year, m
}

// PeriodDate builds a UTC timestamp at midnight on the given day.
func PeriodDate(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns 23:59:59 UTC on the given day.
func EndOfDay(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 23, 59, 59, 0, time.UTC)
}
