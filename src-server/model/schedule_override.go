package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"learnadoodle/src-server/calendar"

	"github.com/uptrace/bun"
)

const (
	OVERRIDE_KIND_DAY_OFF    = "day_off"
	OVERRIDE_KIND_EXTRA_TIME = "extra_time"
)

// ScheduleOverride changes the regular schedule for one date. Day-off
// overrides are what the calendar shows as holidays.
type ScheduleOverride struct {
	bun.BaseModel `bun:"table:schedule_overrides"`

	ID          string `bun:"id,pk"`             // required
	FamilyID    string `bun:"family_id,notnull"` // required
	ChildID     string `bun:"child_id"`
	Date        string `bun:"date,notnull"`          // required
	Kind        string `bun:"override_kind,notnull"` // required
	Name        string `bun:"name"`
	Description string `bun:"description"`
	CreatedAt   int64  `bun:"created_at,notnull"`
}

func (o *ScheduleOverride) Upsert(ctx context.Context, db bun.IDB) error {
	o.Name = strings.TrimSpace(o.Name)
	switch {
	case o.ID == "":
		return fmt.Errorf("(*ScheduleOverride).Upsert: id is blank")
	case o.FamilyID == "":
		return fmt.Errorf("(*ScheduleOverride).Upsert: family id is blank")
	case o.Kind != OVERRIDE_KIND_DAY_OFF && o.Kind != OVERRIDE_KIND_EXTRA_TIME:
		return fmt.Errorf("(*ScheduleOverride).Upsert: unknown override kind %q", o.Kind)
	case calendar.ValidateDate(o.Date) != nil:
		return fmt.Errorf("(*ScheduleOverride).Upsert: %w", calendar.ValidateDate(o.Date))
	}
	if o.CreatedAt == 0 {
		o.CreatedAt = time.Now().UTC().Unix()
	}

	if _, err := db.NewInsert().
		Model(o).
		On("CONFLICT (id) DO UPDATE").
		Set("date = EXCLUDED.date").
		Set("override_kind = EXCLUDED.override_kind").
		Set("name = EXCLUDED.name").
		Set("description = EXCLUDED.description").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*ScheduleOverride).Upsert: %w", err)
	}
	return nil
}

func (o *ScheduleOverride) ToHoliday() calendar.RawHoliday {
	return calendar.RawHoliday{
		ID:          o.ID,
		Name:        o.Name,
		Date:        o.Date,
		Description: o.Description,
	}
}
