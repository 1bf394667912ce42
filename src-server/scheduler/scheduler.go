package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"learnadoodle/src-server/calendar"
	"learnadoodle/src-server/utils"
)

const (
	WORKER_COUNT = 4
	JOB_TIMEOUT  = 5 * time.Minute
)

type familyJob struct {
	familyID string
	store    *calendar.CacheStore
}

// Fan every live calendar session out to WORKER_COUNT workers and wait
// for all of them.
func forEachFamily(as *utils.AppState, fn func(ctx context.Context, familyID string, store *calendar.CacheStore)) {
	queued := make([]familyJob, 0)
	as.IterateCacheStores(func(familyID string, store *calendar.CacheStore) {
		queued = append(queued, familyJob{familyID: familyID, store: store})
	})
	if len(queued) == 0 {
		return
	}

	jobs := make(chan familyJob, len(queued))
	for _, job := range queued {
		jobs <- job
	}
	close(jobs)

	var wg sync.WaitGroup
	for range WORKER_COUNT {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				ctx, cancel := context.WithTimeout(context.Background(), JOB_TIMEOUT)
				fn(ctx, job.familyID, job.store)
				cancel()
			}
		}()
	}
	wg.Wait()
}

// Start registers the periodic jobs on the app cron and starts it. A job
// whose schedule is utils.CRON_DISABLED is skipped.
func Start(as *utils.AppState) error {
	if spec := as.Config.GetRefreshCron(); spec != utils.CRON_DISABLED {
		if _, err := as.Cron.AddFunc(spec, func() {
			if failed := RefreshDisplayedMonths(as); failed > 0 {
				slog.Warn("displayed month refresh failed for some families", "failed", failed)
			}
		}); err != nil {
			return fmt.Errorf("Start: refresh job: %w", err)
		}
		slog.Info("displayed month refresh scheduled", "cron", spec)
	}

	if spec := as.Config.GetAutoCompleteCron(); spec != utils.CRON_DISABLED {
		if as.Config.GetAutoCompleteThreshold() <= 0 {
			slog.Info("auto-complete threshold is zero, sweep not scheduled")
		} else {
			if _, err := as.Cron.AddFunc(spec, func() {
				AutoCompleteSweep(as, time.Now())
			}); err != nil {
				return fmt.Errorf("Start: auto-complete job: %w", err)
			}
			slog.Info("auto-complete sweep scheduled", "cron", spec, "threshold", as.Config.GetAutoCompleteThreshold())
		}
	}

	as.Cron.Start()
	return nil
}
