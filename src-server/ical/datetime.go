package ical

import (
	"fmt"
	"time"
)

// Convert an ISO date into an iCalendar DATE value: YYYYMMDD
func dateValue(isoDate string) (string, error) {
	date, err := time.Parse("2006-01-02", isoDate)
	if err != nil {
		return "", fmt.Errorf("dateValue: %w", err)
	}
	return date.Format("20060102"), nil
}

// the day after isoDate as a DATE value, for exclusive DTEND of whole-day events
func nextDateValue(isoDate string) (string, error) {
	date, err := time.Parse("2006-01-02", isoDate)
	if err != nil {
		return "", fmt.Errorf("nextDateValue: %w", err)
	}
	return date.AddDate(0, 0, 1).Format("20060102"), nil
}

// Convert a time to a local DATE-TIME value (paired with TZID): YYYYMMDDTHHMMSS
func localDateTimeValue(t time.Time) (string, error) {
	if t.IsZero() {
		return "", fmt.Errorf("localDateTimeValue: time is zero")
	}
	return t.Format("20060102T150405"), nil
}

// Convert a time to a UTC DATE-TIME value: YYYYMMDDTHHMMSSZ
func utcDateTimeValue(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
