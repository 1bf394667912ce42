package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"learnadoodle/src-server/calendar"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var _ calendar.Remote = (*Store)(nil)

// Store is the calendar cache's remote side, backed by the app database.
type Store struct {
	db *bun.DB

	// latencies in microseconds; dropped when nobody is listening
	ReadLatency  chan<- float64
	WriteLatency chan<- float64
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FetchMonthEvents(ctx context.Context, familyID string, year, month int, childID string) (*calendar.MonthFeed, error) {
	key, err := calendar.NewMonthKey(year, month)
	if err != nil {
		return nil, fmt.Errorf("FetchMonthEvents: %w", err)
	}
	from, to := key.DateRange()

	defer s.observe(s.ReadLatency, time.Now())

	eventModels := make([]Event, 0)
	query := s.db.NewSelect().
		Model(&eventModels).
		Where("family_id = ?", familyID).
		Where("scheduled_date BETWEEN ? AND ?", from, to)
	if childID != "" {
		// family-wide activities show up for every child
		query = query.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("child_id = ?", childID).WhereOr("child_id = ''")
		})
	}
	if err := query.
		Order("scheduled_date ASC", "id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("FetchMonthEvents: %w", err)
	}

	childModels := make([]Child, 0)
	if err := s.db.NewSelect().
		Model(&childModels).
		Where("family_id = ?", familyID).
		Order("name ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("FetchMonthEvents: can't get children: %w", err)
	}

	feed := &calendar.MonthFeed{
		EventsByDate: make(map[string][]calendar.RawEvent),
		Children:     make([]calendar.ChildRef, 0, len(childModels)),
	}
	for i := range eventModels {
		date := eventModels[i].ScheduledDate
		feed.EventsByDate[date] = append(feed.EventsByDate[date], eventModels[i].ToRaw())
	}
	for _, child := range childModels {
		feed.Children = append(feed.Children, calendar.ChildRef{ID: child.ID, Name: child.Name})
	}
	return feed, nil
}

func (s *Store) FetchHolidays(ctx context.Context, familyID string, from, to string) ([]calendar.RawHoliday, error) {
	defer s.observe(s.ReadLatency, time.Now())

	overrideModels := make([]ScheduleOverride, 0)
	if err := s.db.NewSelect().
		Model(&overrideModels).
		Where("family_id = ?", familyID).
		Where("override_kind = ?", OVERRIDE_KIND_DAY_OFF).
		Where("date BETWEEN ? AND ?", from, to).
		Order("date ASC", "id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("FetchHolidays: %w", err)
	}

	holidays := make([]calendar.RawHoliday, 0, len(overrideModels))
	for i := range overrideModels {
		holidays = append(holidays, overrideModels[i].ToHoliday())
	}
	return holidays, nil
}

func (s *Store) InsertEvent(ctx context.Context, record calendar.NewEvent) (string, error) {
	defer s.observe(s.WriteLatency, time.Now())

	if record.Kind == calendar.KindHoliday {
		id := uuid.NewString()
		override := ScheduleOverride{
			ID:          id,
			FamilyID:    record.FamilyID,
			ChildID:     record.ChildID,
			Date:        record.ScheduledDate,
			Kind:        OVERRIDE_KIND_DAY_OFF,
			Name:        record.Title,
			Description: record.Description,
		}
		if err := s.ensureFamily(ctx, record.FamilyID); err != nil {
			return "", fmt.Errorf("InsertEvent: %w", err)
		}
		if err := override.Upsert(ctx, s.db); err != nil {
			return "", fmt.Errorf("InsertEvent: %w", err)
		}
		return id, nil
	}

	if err := s.ensureFamily(ctx, record.FamilyID); err != nil {
		return "", fmt.Errorf("InsertEvent: %w", err)
	}
	eventModel := NewEventModel(uuid.NewString(), record)
	if err := eventModel.Upsert(ctx, s.db); err != nil {
		return "", fmt.Errorf("InsertEvent: %w", err)
	}
	return eventModel.ID, nil
}

// UpdateEvent applies a cache patch. Ids that aren't events are looked up
// as day-off overrides, which only take title, date and description.
func (s *Store) UpdateEvent(ctx context.Context, id string, patch calendar.Patch) error {
	defer s.observe(s.WriteLatency, time.Now())

	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		eventModel := new(Event)
		err := tx.NewSelect().
			Model(eventModel).
			Where("id = ?", id).
			Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return s.updateOverride(ctx, tx, id, patch)
		case err != nil:
			return fmt.Errorf("UpdateEvent: %w", err)
		}

		eventModel.ApplyPatch(patch)
		if err := eventModel.Upsert(ctx, tx); err != nil {
			return fmt.Errorf("UpdateEvent: %w", err)
		}
		return nil
	})
}

func (s *Store) updateOverride(ctx context.Context, tx bun.Tx, id string, patch calendar.Patch) error {
	override := new(ScheduleOverride)
	if err := tx.NewSelect().
		Model(override).
		Where("id = ?", id).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("UpdateEvent: event %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("UpdateEvent: %w", err)
	}
	for _, field := range patch.Fields() {
		switch {
		case field == calendar.FieldTitle, field == calendar.FieldScheduledDate, field == calendar.FieldDescription:
		case field == calendar.FieldTrackID && *patch.TrackID == "":
		case field == calendar.FieldActivityID && *patch.ActivityID == "":
		default:
			return fmt.Errorf("UpdateEvent: day off %s: %s: %w", id, field, ErrUnsupportedField)
		}
	}
	if patch.Title != nil {
		override.Name = *patch.Title
	}
	if patch.ScheduledDate != nil {
		override.Date = *patch.ScheduledDate
	}
	if patch.Description != nil {
		override.Description = *patch.Description
	}
	if err := override.Upsert(ctx, tx); err != nil {
		return fmt.Errorf("UpdateEvent: %w", err)
	}
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	defer s.observe(s.WriteLatency, time.Now())

	for _, model := range []interface{}{
		(*Event)(nil),
		(*ScheduleOverride)(nil),
	} {
		res, err := s.db.NewDelete().
			Model(model).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("DeleteEvent: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			return nil
		}
	}
	return fmt.Errorf("DeleteEvent: event %s: %w", id, ErrNotFound)
}

// Ping is the cheapest query that still touches the events table.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := s.db.NewSelect().
		Model((*Event)(nil)).
		Where("family_id = ?", "").
		Exists(ctx); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func (s *Store) ensureFamily(ctx context.Context, familyID string) error {
	exists, err := s.db.NewSelect().
		Model((*Family)(nil)).
		Where("id = ?", familyID).
		Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return ErrFamilyNotFound
	}
	return nil
}

func (s *Store) observe(ch chan<- float64, start time.Time) {
	if ch == nil {
		return
	}
	select {
	case ch <- float64(time.Since(start).Microseconds()):
	default:
	}
}

// GetFamily returns the family row, ErrFamilyNotFound when there is none.
func (s *Store) GetFamily(ctx context.Context, familyID string) (*Family, error) {
	defer s.observe(s.ReadLatency, time.Now())

	family := new(Family)
	if err := s.db.NewSelect().
		Model(family).
		Where("id = ?", familyID).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetFamily: %w", ErrFamilyNotFound)
		}
		return nil, fmt.Errorf("GetFamily: %w", err)
	}
	return family, nil
}
