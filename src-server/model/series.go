package model

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"learnadoodle/src-server/calendar"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/xyedo/rrule"
)

const (
	MAX_SERIES_OCCURRENCES = 366
	MAX_SERIES_WINDOW      = 366 * 24 * time.Hour
)

// ActivitySeries is a recurring activity ("piano every Tuesday") that is
// stored as one event row per occurrence, all sharing a series id.
type ActivitySeries struct {
	FamilyID    string
	ChildID     string
	Kind        calendar.Kind
	Title       string
	Description string
	TrackID     string
	ActivityID  string
	Assignees   []string

	// first occurrence; ScheduledTime may be blank for whole-day activities
	StartDate       string
	ScheduledTime   string
	DurationMinutes *int
	// RRULE body without the prefix, e.g. "FREQ=WEEKLY;BYDAY=TU;COUNT=10"
	RRule string
}

// Occurrences expands the rule into the dates it produces, capped at
// MAX_SERIES_OCCURRENCES within MAX_SERIES_WINDOW of the first date.
func (a *ActivitySeries) Occurrences() ([]string, error) {
	start, err := time.Parse("2006-01-02", a.StartDate)
	if err != nil {
		return nil, fmt.Errorf("(*ActivitySeries).Occurrences: %w", err)
	}
	body := strings.TrimPrefix(strings.TrimSpace(a.RRule), "RRULE:")
	if body == "" {
		return nil, fmt.Errorf("(*ActivitySeries).Occurrences: rrule is blank")
	}

	// wall-clock dates are expanded as if they were UTC so DST never
	// shifts an occurrence onto another day
	rruleSet, err := rrule.StrToRRuleSet("DTSTART:" + start.Format("20060102T150405Z") + "\nRRULE:" + body)
	if err != nil {
		return nil, fmt.Errorf("(*ActivitySeries).Occurrences: invalid rrule: %w", err)
	}

	dates := make([]string, 0)
	for _, occurrence := range rruleSet.Between(start, start.Add(MAX_SERIES_WINDOW), true) {
		if len(dates) == MAX_SERIES_OCCURRENCES {
			break
		}
		dates = append(dates, occurrence.UTC().Format("2006-01-02"))
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("(*ActivitySeries).Occurrences: rrule produces no dates")
	}
	return dates, nil
}

// InsertActivitySeries stores every occurrence of the series in one
// transaction and returns the series id.
func (s *Store) InsertActivitySeries(ctx context.Context, series ActivitySeries) (string, []string, error) {
	defer s.observe(s.WriteLatency, time.Now())

	dates, err := series.Occurrences()
	if err != nil {
		return "", nil, fmt.Errorf("InsertActivitySeries: %w", err)
	}
	if err := s.ensureFamily(ctx, series.FamilyID); err != nil {
		return "", nil, fmt.Errorf("InsertActivitySeries: %w", err)
	}

	seriesID := uuid.NewString()
	ids := make([]string, 0, len(dates))
	if err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, date := range dates {
			record := calendar.NewEvent{
				FamilyID:        series.FamilyID,
				Kind:            series.Kind,
				Title:           series.Title,
				ScheduledDate:   date,
				ScheduledTime:   series.ScheduledTime,
				DurationMinutes: series.DurationMinutes,
				Assignees:       series.Assignees,
				ChildID:         series.ChildID,
				TrackID:         series.TrackID,
				ActivityID:      series.ActivityID,
				SeriesID:        seriesID,
				Description:     series.Description,
			}
			if err := calendar.PrepareNewEvent(&record); err != nil {
				return err
			}
			eventModel := NewEventModel(uuid.NewString(), record)
			if err := eventModel.Upsert(ctx, tx); err != nil {
				return err
			}
			ids = append(ids, eventModel.ID)
		}
		return nil
	}); err != nil {
		return "", nil, fmt.Errorf("InsertActivitySeries: %w", err)
	}
	return seriesID, ids, nil
}

// DeleteActivitySeries removes every occurrence of the family's series
// dated on or after from, or all of them when from is blank.
func (s *Store) DeleteActivitySeries(ctx context.Context, familyID, seriesID, from string) (int64, error) {
	defer s.observe(s.WriteLatency, time.Now())

	query := s.db.NewDelete().
		Model((*Event)(nil)).
		Where("family_id = ?", familyID).
		Where("series_id = ?", seriesID)
	if from != "" {
		query = query.Where("scheduled_date >= ?", from)
	}
	res, err := query.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("DeleteActivitySeries: %w", err)
	}
	return res.RowsAffected()
}
