package calendar

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const minutesPerDay = 24 * 60

// accepts "9", "09:00", "9:00 AM", "8pm", "14:00:00"
var timeOfDayRe = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?(?::(\d{2}))?\s*([AaPp][Mm])?$`)

// ParseTimeOfDay converts a time-of-day string into minutes since midnight.
// Full timestamps such as "2025-08-05T09:00:00" are accepted and their
// date part is ignored.
func ParseTimeOfDay(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("ParseTimeOfDay: blank time")
	}
	if _, clock, ok := splitTimestamp(s); ok {
		s = clock
	}

	m := timeOfDayRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("ParseTimeOfDay: unrecognized time %q", raw)
	}
	hours, _ := strconv.Atoi(m[1])
	minutes := 0
	if m[2] != "" {
		minutes, _ = strconv.Atoi(m[2])
	}
	if minutes > 59 {
		return 0, fmt.Errorf("ParseTimeOfDay: minutes out of range in %q", raw)
	}

	switch strings.ToUpper(m[4]) {
	case "AM":
		if hours < 1 || hours > 12 {
			return 0, fmt.Errorf("ParseTimeOfDay: hour out of range in %q", raw)
		}
		if hours == 12 {
			hours = 0
		}
	case "PM":
		if hours < 1 || hours > 12 {
			return 0, fmt.Errorf("ParseTimeOfDay: hour out of range in %q", raw)
		}
		if hours != 12 {
			hours += 12
		}
	}
	if hours > 23 {
		return 0, fmt.Errorf("ParseTimeOfDay: hour out of range in %q", raw)
	}

	return hours*60 + minutes, nil
}

// FormatTimeOfDay renders minutes since midnight as HH:MM, wrapping
// values outside a single day.
func FormatTimeOfDay(minutes int) string {
	minutes = ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Normalize any accepted time-of-day spelling into HH:MM.
func CanonicalTime(raw string) (string, error) {
	minutes, err := ParseTimeOfDay(raw)
	if err != nil {
		return "", err
	}
	return FormatTimeOfDay(minutes), nil
}

// FinishFrom adds a duration to a start time, wrapping past midnight.
func FinishFrom(start, duration int) int {
	return (start + duration) % minutesPerDay
}

// DurationBetween is finish - start. A negative difference means the
// event spans midnight, so a day is added instead of rejecting it.
func DurationBetween(start, finish int) int {
	d := finish - start
	if d < 0 {
		d += minutesPerDay
	}
	return d
}

// splits "2025-08-05T09:00:00" or "2025-08-05 09:00" into date and clock
func splitTimestamp(s string) (string, string, bool) {
	idx := strings.IndexAny(s, "T ")
	if idx != 10 || len(s) < 12 {
		return "", "", false
	}
	date := s[:idx]
	if ValidateDate(date) != nil {
		return "", "", false
	}
	clock := s[idx+1:]
	// drop zone suffixes such as "Z" or "+02:00"
	if cut := strings.IndexAny(clock, "Z+"); cut > 0 {
		clock = clock[:cut]
	}
	if cut := strings.LastIndex(clock, "-"); cut > 4 {
		clock = clock[:cut]
	}
	if cut := strings.Index(clock, "."); cut > 0 {
		clock = clock[:cut]
	}
	return date, clock, true
}
