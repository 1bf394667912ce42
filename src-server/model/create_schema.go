package model

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
)

func CreateSchema(ctx context.Context, db *bun.DB) error {
	if err := db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range []interface{}{
			(*Family)(nil),
			(*Child)(nil),
			(*Event)(nil),
			(*ScheduleOverride)(nil),
		} {
			if _, err := tx.
				NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx); err != nil {
				return err
			}
		}
		for _, index := range []struct {
			model   interface{}
			name    string
			columns []string
		}{
			{(*Event)(nil), "idx_events_family_date", []string{"family_id", "scheduled_date"}},
			{(*ScheduleOverride)(nil), "idx_overrides_family_date", []string{"family_id", "date"}},
		} {
			if _, err := tx.
				NewCreateIndex().
				Model(index.model).
				Index(index.name).
				Column(index.columns...).
				IfNotExists().
				Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("CreateSchema: %w", err)
	}

	return nil
}
