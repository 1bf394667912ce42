package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type FamilyIDCtxKeyType string

const FamilyIDCtxKey FamilyIDCtxKeyType = "family-id"

type Family struct {
	bun.BaseModel `bun:"table:families"`

	ID        string `bun:"id,pk"`        // required
	Name      string `bun:"name,notnull"` // required
	Timezone  string `bun:"timezone"`
	CreatedAt int64  `bun:"created_at,notnull"`

	Children []*Child `bun:"rel:has-many,join:id=family_id"`
}

func (f *Family) Upsert(ctx context.Context, db bun.IDB) error {
	f.Name = strings.TrimSpace(f.Name)
	switch {
	case f.ID == "":
		return fmt.Errorf("(*Family).Upsert: family id is blank")
	case f.Name == "":
		return fmt.Errorf("(*Family).Upsert: name is blank")
	case f.Timezone != "":
		if _, err := time.LoadLocation(f.Timezone); err != nil {
			return fmt.Errorf("(*Family).Upsert: timezone is invalid: %w", err)
		}
	}
	if f.CreatedAt == 0 {
		f.CreatedAt = time.Now().UTC().Unix()
	}

	if _, err := db.NewInsert().
		Model(f).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("timezone = EXCLUDED.timezone").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Family).Upsert: %w", err)
	}
	return nil
}

var _ bun.AfterDeleteHook = (*Family)(nil)

// Cleanup children, events and schedule overrides of the deleted family
func (f *Family) AfterDelete(ctx context.Context, query *bun.DeleteQuery) error {
	if query.DB() == nil {
		return fmt.Errorf("(*Family).AfterDelete: db is nil")
	}
	familyID, ok := ctx.Value(FamilyIDCtxKey).(string)
	if !ok || familyID == "" {
		return nil
	}

	for _, model := range []interface{}{
		(*Child)(nil),
		(*Event)(nil),
		(*ScheduleOverride)(nil),
	} {
		if _, err := query.DB().NewDelete().
			Model(model).
			Where("family_id = ?", familyID).
			Exec(ctx); err != nil {
			return fmt.Errorf("(*Family).AfterDelete: %w", err)
		}
	}
	return nil
}

type Child struct {
	bun.BaseModel `bun:"table:children"`

	ID        string `bun:"id,pk"`             // required
	FamilyID  string `bun:"family_id,notnull"` // required
	Name      string `bun:"name,notnull"`      // required
	CreatedAt int64  `bun:"created_at,notnull"`

	Family *Family `bun:"rel:belongs-to,join:family_id=id"`
}

func (c *Child) Upsert(ctx context.Context, db bun.IDB) error {
	c.Name = strings.TrimSpace(c.Name)
	switch {
	case c.ID == "":
		return fmt.Errorf("(*Child).Upsert: child id is blank")
	case c.FamilyID == "":
		return fmt.Errorf("(*Child).Upsert: family id is blank")
	case c.Name == "":
		return fmt.Errorf("(*Child).Upsert: name is blank")
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().UTC().Unix()
	}

	exists, err := db.NewSelect().
		Model((*Family)(nil)).
		Where("id = ?", c.FamilyID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("(*Child).Upsert: %w", err)
	}
	if !exists {
		return fmt.Errorf("(*Child).Upsert: %w", ErrFamilyNotFound)
	}

	if _, err := db.NewInsert().
		Model(c).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Child).Upsert: %w", err)
	}
	return nil
}

// DeleteFamily removes the family together with everything hanging off it.
func (s *Store) DeleteFamily(ctx context.Context, familyID string) error {
	defer s.observe(s.WriteLatency, time.Now())

	res, err := s.db.NewDelete().
		Model((*Family)(nil)).
		Where("id = ?", familyID).
		Exec(context.WithValue(ctx, FamilyIDCtxKey, familyID))
	if err != nil {
		return fmt.Errorf("DeleteFamily: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("DeleteFamily: %w", ErrFamilyNotFound)
	}
	return nil
}
