package calendar

import "context"

// Remote is the data store behind the cache. Implementations must be safe
// for concurrent use.
type Remote interface {
	FetchMonthEvents(ctx context.Context, familyID string, year, month int, childID string) (*MonthFeed, error)
	FetchHolidays(ctx context.Context, familyID string, from, to string) ([]RawHoliday, error)
	InsertEvent(ctx context.Context, record NewEvent) (string, error)
	UpdateEvent(ctx context.Context, id string, patch Patch) error
	DeleteEvent(ctx context.Context, id string) error
}

// RawEvent is a lesson instance or family activity as the store returns
// it, before normalization.
type RawEvent struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Kind        string  `json:"kind"`
	Date        string  `json:"date"`
	StartLocal  *string `json:"startLocal"`
	FinishLocal *string `json:"finishLocal"`
	Duration    *int    `json:"durationMinutes"`
	Status      string  `json:"status"`
	ChildID     string  `json:"childId"`
	SubjectName string  `json:"subjectName"`
	YearPlanID  *string `json:"yearPlanId"`
	TrackID     *string `json:"trackId"`
	ActivityID  *string `json:"activityId"`
	SeriesID    *string `json:"seriesId"`
	Assignees   *string `json:"assignees"`
	Description string  `json:"description"`
	// Set by stores that leave StartLocal nil for untimed events. A
	// midnight start is then a real start time, not a whole-day marker.
	NilStartIsUntimed bool `json:"nilStartIsUntimed,omitempty"`
}

type RawHoliday struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

type ChildRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MonthFeed struct {
	EventsByDate map[string][]RawEvent `json:"eventsByDate"`
	Children     []ChildRef            `json:"children"`
}

// NewEvent is the record handed to Remote.InsertEvent.
type NewEvent struct {
	FamilyID        string   `json:"-"`
	Kind            Kind     `json:"kind"`
	Title           string   `json:"title"`
	ScheduledDate   string   `json:"scheduledDate"`
	ScheduledTime   string   `json:"scheduledTime,omitempty"`
	FinishTime      string   `json:"finishTime,omitempty"`
	DurationMinutes *int     `json:"durationMinutes,omitempty"`
	Status          Status   `json:"status,omitempty"`
	Assignees       []string `json:"assignees,omitempty"`
	ChildID         string   `json:"childId,omitempty"`
	SubjectName     string   `json:"subjectName,omitempty"`
	TrackID         string   `json:"trackId,omitempty"`
	ActivityID      string   `json:"activityId,omitempty"`
	SeriesID        string   `json:"seriesId,omitempty"`
	Description     string   `json:"description,omitempty"`
}

// Filters narrow a month load.
type Filters struct {
	FamilyID string
	ChildID  string
}
