package calendar

import (
	"fmt"
	"strings"
	"time"
)

// MonthKey identifies one cache partition. Month is zero-based
// (0 = January) to match the calendar views that drive the cache.
type MonthKey struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func NewMonthKey(year, month int) (MonthKey, error) {
	if month < 0 || month > 11 {
		return MonthKey{}, fmt.Errorf("NewMonthKey: month index %d out of range 0-11", month)
	}
	if year < 1 || year > 9999 {
		return MonthKey{}, fmt.Errorf("NewMonthKey: year %d out of range", year)
	}
	return MonthKey{Year: year, Month: month}, nil
}

// MonthKeyOf returns the partition an ISO date belongs to.
func MonthKeyOf(date string) (MonthKey, error) {
	t, err := time.Parse(isoDateLayout, date)
	if err != nil {
		return MonthKey{}, fmt.Errorf("MonthKeyOf: %w", err)
	}
	return MonthKeyFromTime(t), nil
}

func MonthKeyFromTime(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: int(t.Month()) - 1}
}

// "2025-08" for {2025, 7}
func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, k.Month+1)
}

func (k MonthKey) FirstDay() time.Time {
	return time.Date(k.Year, time.Month(k.Month+1), 1, 0, 0, 0, 0, time.UTC)
}

func (k MonthKey) LastDay() time.Time {
	return k.FirstDay().AddDate(0, 1, -1)
}

// Inclusive ISO date range covered by the month.
func (k MonthKey) DateRange() (string, string) {
	return k.FirstDay().Format(isoDateLayout), k.LastDay().Format(isoDateLayout)
}

func (k MonthKey) Contains(date string) bool {
	return strings.HasPrefix(date, k.String()+"-")
}

func (k MonthKey) Next() MonthKey {
	return MonthKeyFromTime(k.FirstDay().AddDate(0, 1, 0))
}

func (k MonthKey) Before(other MonthKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Month < other.Month
}

type LoadState int

const (
	NotLoaded LoadState = iota
	Loading
	Loaded
)

func (s LoadState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "not_loaded"
	}
}

func (s LoadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *LoadState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "not_loaded":
		*s = NotLoaded
	case "loading":
		*s = Loading
	case "loaded":
		*s = Loaded
	default:
		return fmt.Errorf("unknown load state %q", text)
	}
	return nil
}
