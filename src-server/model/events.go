package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"learnadoodle/src-server/calendar"

	"github.com/uptrace/bun"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrFamilyNotFound = errors.New("family not found")
	// a patch touches a field the row has no column for
	ErrUnsupportedField = errors.New("field can't be stored")
)

// Event is one lesson instance or family activity. Times are stored the
// way the scheduling screens write them: start_local/finish_local are
// local wall-clock stamps ("2025-08-05T09:00:00"). Untimed events have no
// start_local, so a midnight start is a real start time.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID          string `bun:"id,pk"`             // required
	FamilyID    string `bun:"family_id,notnull"` // required
	ChildID     string `bun:"child_id"`
	Kind        string `bun:"kind,notnull"`  // required
	Title       string `bun:"title,notnull"` // required
	SubjectName string `bun:"subject_name"`
	Description string `bun:"description"`

	ScheduledDate   string  `bun:"scheduled_date,notnull"` // required
	StartLocal      *string `bun:"start_local"`
	FinishLocal     *string `bun:"finish_local"`
	DurationMinutes *int    `bun:"duration_minutes"`
	Status          string  `bun:"status,notnull"`

	// JSON array text; older rows hold a bare id
	Assignees  *string `bun:"assignees"`
	TrackID    *string `bun:"track_id"`
	ActivityID *string `bun:"activity_id"`
	YearPlanID *string `bun:"year_plan_id"`
	SeriesID   *string `bun:"series_id"`

	CreatedAt int64 `bun:"created_at,notnull"`
	UpdatedAt int64 `bun:"updated_at"`
	Sequence  int   `bun:"sequence"`

	Family *Family `bun:"rel:belongs-to,join:family_id=id"`
}

func (e *Event) Upsert(ctx context.Context, db bun.IDB) error {
	e.Title = strings.TrimSpace(e.Title)
	switch {
	case e.ID == "":
		return fmt.Errorf("(*Event).Upsert: event id is blank")
	case e.FamilyID == "":
		return fmt.Errorf("(*Event).Upsert: family id is blank")
	case e.Title == "":
		return fmt.Errorf("(*Event).Upsert: title is blank")
	case !calendar.Kind(e.Kind).Valid() || calendar.Kind(e.Kind) == calendar.KindHoliday:
		return fmt.Errorf("(*Event).Upsert: kind %q can't be stored as an event", e.Kind)
	case calendar.ValidateDate(e.ScheduledDate) != nil:
		return fmt.Errorf("(*Event).Upsert: %w", calendar.ValidateDate(e.ScheduledDate))
	case e.DurationMinutes != nil && *e.DurationMinutes < 0:
		return fmt.Errorf("(*Event).Upsert: duration is negative")
	}
	if e.Status == "" {
		e.Status = string(calendar.StatusPlanned)
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UTC().Unix()
	}

	exists, err := db.NewSelect().
		Model((*Event)(nil)).
		Where("id = ?", e.ID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("(*Event).Upsert: %w", err)
	}

	switch exists {
	case true:
		e.UpdatedAt = time.Now().UTC().Unix()
		e.Sequence++
		if _, err := db.NewUpdate().
			Model(e).
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("(*Event).Upsert: %w", err)
		}
	case false:
		if _, err := db.NewInsert().
			Model(e).
			Exec(ctx); err != nil {
			return fmt.Errorf("(*Event).Upsert: %w", err)
		}
	}

	return nil
}

// ToRaw is the record as the calendar cache receives it.
func (e *Event) ToRaw() calendar.RawEvent {
	return calendar.RawEvent{
		ID:          e.ID,
		Title:       e.Title,
		Kind:        e.Kind,
		Date:        e.ScheduledDate,
		StartLocal:  e.StartLocal,
		FinishLocal: e.FinishLocal,
		Duration:    e.DurationMinutes,
		Status:      e.Status,
		ChildID:     e.ChildID,
		SubjectName: e.SubjectName,
		YearPlanID:  e.YearPlanID,
		TrackID:     e.TrackID,
		ActivityID:  e.ActivityID,
		SeriesID:    e.SeriesID,
		Assignees:   e.Assignees,
		Description: e.Description,

		NilStartIsUntimed: true,
	}
}

// ApplyPatch writes a cache patch onto the stored row.
func (e *Event) ApplyPatch(p calendar.Patch) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.ScheduledDate != nil {
		e.ScheduledDate = *p.ScheduledDate
	}

	start := clockOf(e.StartLocal)
	if p.ScheduledTime != nil {
		start = *p.ScheduledTime
	}
	finish := clockOf(e.FinishLocal)
	if p.FinishTime != nil {
		finish = *p.FinishTime
	}
	e.StartLocal = localStamp(e.ScheduledDate, start)
	e.FinishLocal = nil
	if start != "" {
		e.FinishLocal = localStamp(e.ScheduledDate, finish)
	}

	if p.DurationMinutes != nil {
		d := *p.DurationMinutes
		e.DurationMinutes = &d
	}
	if p.Status != nil {
		e.Status = string(*p.Status)
	}
	if p.Assignees != nil {
		encoded := calendar.EncodeAssignees(*p.Assignees)
		e.Assignees = &encoded
	}
	if p.TrackID != nil {
		e.TrackID = optional(*p.TrackID)
	}
	if p.ActivityID != nil {
		e.ActivityID = optional(*p.ActivityID)
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
}

// NewEventModel builds the row for a validated new event.
func NewEventModel(id string, rec calendar.NewEvent) *Event {
	e := &Event{
		ID:              id,
		FamilyID:        rec.FamilyID,
		ChildID:         rec.ChildID,
		Kind:            string(rec.Kind),
		Title:           rec.Title,
		SubjectName:     rec.SubjectName,
		Description:     rec.Description,
		ScheduledDate:   rec.ScheduledDate,
		StartLocal:      localStamp(rec.ScheduledDate, rec.ScheduledTime),
		DurationMinutes: rec.DurationMinutes,
		Status:          string(rec.Status),
		TrackID:         optional(rec.TrackID),
		ActivityID:      optional(rec.ActivityID),
		SeriesID:        optional(rec.SeriesID),
	}
	if rec.ScheduledTime != "" {
		e.FinishLocal = localStamp(rec.ScheduledDate, rec.FinishTime)
	}
	if len(rec.Assignees) > 0 {
		encoded := calendar.EncodeAssignees(rec.Assignees)
		e.Assignees = &encoded
	}
	return e
}

// "2025-08-05" + "09:00" -> "2025-08-05T09:00:00"
func localStamp(date, clock string) *string {
	if clock == "" {
		return nil
	}
	s := date + "T" + clock + ":00"
	return &s
}

// clock part of a stored stamp as HH:MM, "" when there is none
func clockOf(stamp *string) string {
	if stamp == nil || *stamp == "" {
		return ""
	}
	clock, err := calendar.CanonicalTime(*stamp)
	if err != nil {
		return ""
	}
	return clock
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
