package calendar

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type Kind string

const (
	KindLesson   Kind = "lesson"
	KindActivity Kind = "activity"
	KindHoliday  Kind = "holiday"
)

func (k Kind) Valid() bool {
	switch k {
	case KindLesson, KindActivity, KindHoliday:
		return true
	}
	return false
}

// lessons and activities must point at a track and an activity before
// they are persisted
func (k Kind) NeedsTrack() bool {
	return k == KindLesson || k == KindActivity
}

type Status string

const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusSkipped    Status = "skipped"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusInProgress, StatusCompleted, StatusSkipped:
		return true
	}
	return false
}

// Map the status spellings found in stored records onto the four
// statuses the cache understands. Unknown values fall back to planned.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "in_progress", "in-progress", "inprogress":
		return StatusInProgress
	case "completed", "complete", "done":
		return StatusCompleted
	case "skipped", "canceled", "cancelled":
		return StatusSkipped
	default:
		return StatusPlanned
	}
}

const isoDateLayout = "2006-01-02"

// Event is one schedulable item as held by the cache.
type Event struct {
	ID              string   `json:"id"`
	Kind            Kind     `json:"kind"`
	Title           string   `json:"title"`
	ScheduledDate   string   `json:"scheduledDate"`
	ScheduledTime   string   `json:"scheduledTime,omitempty"`
	FinishTime      string   `json:"finishTime,omitempty"`
	DurationMinutes *int     `json:"durationMinutes,omitempty"`
	Status          Status   `json:"status"`
	Assignees       []string `json:"assignees"`
	TrackID         string   `json:"trackId,omitempty"`
	ActivityID      string   `json:"activityId,omitempty"`
	Description     string   `json:"description,omitempty"`

	ChildID     string `json:"childId,omitempty"`
	SubjectName string `json:"subjectName,omitempty"`
	YearPlanID  string `json:"yearPlanId,omitempty"`
	SeriesID    string `json:"seriesId,omitempty"`
}

// Deep copy, the cache never hands out its own slices or pointers.
func (e Event) Clone() Event {
	c := e
	if e.DurationMinutes != nil {
		d := *e.DurationMinutes
		c.DurationMinutes = &d
	}
	c.Assignees = slices.Clone(e.Assignees)
	if c.Assignees == nil {
		c.Assignees = []string{}
	}
	return c
}

// StartAt resolves the scheduled date and time in loc. ok is false when
// the event has no time of day.
func (e Event) StartAt(loc *time.Location) (time.Time, bool) {
	if e.ScheduledTime == "" {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation(isoDateLayout, e.ScheduledDate, loc)
	if err != nil {
		return time.Time{}, false
	}
	minutes, err := ParseTimeOfDay(e.ScheduledTime)
	if err != nil {
		return time.Time{}, false
	}
	return day.Add(time.Duration(minutes) * time.Minute), true
}

// EndAt resolves the end of the event from its finish time, falling back
// to start + duration. A finish earlier than the start lands on the
// following day.
func (e Event) EndAt(loc *time.Location) (time.Time, bool) {
	start, ok := e.StartAt(loc)
	if !ok {
		return time.Time{}, false
	}
	if e.FinishTime != "" {
		finish, err := ParseTimeOfDay(e.FinishTime)
		if err == nil {
			startMin, _ := ParseTimeOfDay(e.ScheduledTime)
			return start.Add(time.Duration(DurationBetween(startMin, finish)) * time.Minute), true
		}
	}
	if e.DurationMinutes != nil {
		return start.Add(time.Duration(*e.DurationMinutes) * time.Minute), true
	}
	return time.Time{}, false
}

// ValidateDate checks an ISO calendar date.
func ValidateDate(date string) error {
	if _, err := time.Parse(isoDateLayout, date); err != nil {
		return fmt.Errorf("invalid date %q: %w", date, err)
	}
	return nil
}
