package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"learnadoodle/src-server/calendar"
	"learnadoodle/src-server/utils"
)

// AutoCompleteSweep marks finished lessons and activities completed in
// every live session and waits for the writes to settle. Returns how
// many events ended up completed.
func AutoCompleteSweep(as *utils.AppState, now time.Time) int {
	var completed atomic.Int32
	forEachFamily(as, func(ctx context.Context, familyID string, store *calendar.CacheStore) {
		cmds, err := store.AutoComplete(ctx, now)
		if err != nil {
			slog.Warn("AutoCompleteSweep: some events were skipped", "familyID", familyID, "error", err)
		}
		for _, cmd := range cmds {
			err := cmd.Wait(ctx)
			var rejected *calendar.MutationRejected
			switch {
			case err == nil:
				completed.Add(1)
			case errors.As(err, &rejected):
				slog.Warn("AutoCompleteSweep: completion rolled back", "familyID", familyID, "eventID", cmd.EventID, "error", err)
			default:
				slog.Error("AutoCompleteSweep: gave up waiting", "familyID", familyID, "eventID", cmd.EventID, "error", err)
			}
		}
	})
	if n := completed.Load(); n > 0 {
		slog.Info("AutoCompleteSweep: events completed", "count", n)
	}
	return int(completed.Load())
}
