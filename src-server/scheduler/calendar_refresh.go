package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"

	"learnadoodle/src-server/calendar"
	"learnadoodle/src-server/utils"
)

// RefreshDisplayedMonths reloads the month each family is looking at, so
// changes made elsewhere show up without a manual refresh. Returns the
// number of families whose refresh failed.
func RefreshDisplayedMonths(as *utils.AppState) int {
	var failed atomic.Int32
	forEachFamily(as, func(ctx context.Context, familyID string, store *calendar.CacheStore) {
		key, ok := store.DisplayedMonth()
		if !ok {
			return
		}
		if err := store.RefreshDisplayed(ctx); err != nil {
			failed.Add(1)
			slog.Warn("RefreshDisplayedMonths: can't refresh", "familyID", familyID, "month", key, "error", err)
			return
		}
		slog.Debug("RefreshDisplayedMonths: refreshed", "familyID", familyID, "month", key)
	})
	return int(failed.Load())
}
