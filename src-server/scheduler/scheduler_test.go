package scheduler

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"learnadoodle/src-server/calendar"
	"learnadoodle/src-server/model"
	"learnadoodle/src-server/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestAppState(t *testing.T, env map[string]string) *utils.AppState {
	t.Helper()
	for _, key := range []string{"CONFIG_FILE", "AUTO_COMPLETE_THRESHOLD", "REFRESH_CRON", "AUTO_COMPLETE_CRON"} {
		t.Setenv(key, "")
	}
	t.Setenv("TIMEZONE", "UTC")
	for key, value := range env {
		t.Setenv(key, value)
	}
	config, err := utils.NewConfig()
	require.NoError(t, err)

	rawDB, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	rawDB.SetMaxOpenConns(1)
	as, err := utils.NewAppState(config, rawDB)
	require.NoError(t, err)
	t.Cleanup(as.GracefulShutdown)

	family := model.Family{ID: "family-1", Name: "Lovelace"}
	require.NoError(t, family.Upsert(context.Background(), as.BunDB))
	return as
}

func insertLesson(t *testing.T, as *utils.AppState, date, clock string) string {
	t.Helper()
	duration := 45
	id, err := as.Store.InsertEvent(context.Background(), calendar.NewEvent{
		FamilyID:        "family-1",
		Kind:            calendar.KindLesson,
		Title:           "Math",
		ScheduledDate:   date,
		ScheduledTime:   clock,
		DurationMinutes: &duration,
		TrackID:         "track-1",
		ActivityID:      "activity-1",
	})
	require.NoError(t, err)
	return id
}

var aug2025 = calendar.MonthKey{Year: 2025, Month: 7}

func TestRefreshDisplayedMonths(t *testing.T) {
	as := newTestAppState(t, nil)
	ctx := context.Background()
	insertLesson(t, as, "2025-08-05", "09:00")

	store, err := as.GetCacheStore(ctx, "family-1")
	require.NoError(t, err)
	_, err = store.EnsureLoaded(ctx, aug2025)
	require.NoError(t, err)

	// written behind the cache's back
	late := insertLesson(t, as, "2025-08-06", "09:00")
	assert.Empty(t, store.GetFlatView(aug2025)["2025-08-06"])

	// nothing is displayed yet, so nothing is reloaded
	assert.Zero(t, RefreshDisplayedMonths(as))
	assert.Empty(t, store.GetFlatView(aug2025)["2025-08-06"])

	store.SetDisplayedMonth(aug2025)
	assert.Zero(t, RefreshDisplayedMonths(as))
	require.Len(t, store.GetFlatView(aug2025)["2025-08-06"], 1)
	assert.Equal(t, late, store.GetFlatView(aug2025)["2025-08-06"][0].ID)
}

func TestAutoCompleteSweep(t *testing.T) {
	as := newTestAppState(t, map[string]string{"AUTO_COMPLETE_THRESHOLD": "5m"})
	ctx := context.Background()
	done := insertLesson(t, as, "2025-08-05", "09:00")
	later := insertLesson(t, as, "2025-08-05", "13:00")

	store, err := as.GetCacheStore(ctx, "family-1")
	require.NoError(t, err)
	_, err = store.EnsureLoaded(ctx, aug2025)
	require.NoError(t, err)

	now := time.Date(2025, time.August, 5, 9, 41, 0, 0, time.UTC)
	assert.Equal(t, 1, AutoCompleteSweep(as, now))

	view := store.GetFlatView(aug2025)["2025-08-05"]
	require.Len(t, view, 2)
	statuses := map[string]calendar.Status{view[0].ID: view[0].Status, view[1].ID: view[1].Status}
	assert.Equal(t, calendar.StatusCompleted, statuses[done])
	assert.Equal(t, calendar.StatusPlanned, statuses[later])

	// a second pass finds nothing left to do
	assert.Zero(t, AutoCompleteSweep(as, now))
}

func TestStartSchedulesEnabledJobs(t *testing.T) {
	as := newTestAppState(t, map[string]string{"AUTO_COMPLETE_THRESHOLD": "5m"})
	require.NoError(t, Start(as))
	assert.Len(t, as.Cron.Entries(), 2)

	disabled := newTestAppState(t, map[string]string{
		"REFRESH_CRON":       utils.CRON_DISABLED,
		"AUTO_COMPLETE_CRON": utils.CRON_DISABLED,
	})
	require.NoError(t, Start(disabled))
	assert.Empty(t, disabled.Cron.Entries())
}
