package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// RefreshScheduler reloads whole months. It is the only way an event that
// moved across a month boundary ends up in the right place: the
// coordinator can only touch buckets that are already loaded.
type RefreshScheduler struct {
	loader  *CacheLoader
	cache   *MonthCache
	merger  *EventMerger
	filters func() Filters

	mu           sync.Mutex
	displayed    MonthKey
	hasDisplayed bool
}

func NewRefreshScheduler(loader *CacheLoader, cache *MonthCache, merger *EventMerger, filters func() Filters) *RefreshScheduler {
	return &RefreshScheduler{
		loader:  loader,
		cache:   cache,
		merger:  merger,
		filters: filters,
	}
}

func (r *RefreshScheduler) SetDisplayedMonth(key MonthKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.displayed = key
	r.hasDisplayed = true
}

func (r *RefreshScheduler) DisplayedMonth() (MonthKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.displayed, r.hasDisplayed
}

// RefreshMonth invalidates key and loads it again.
func (r *RefreshScheduler) RefreshMonth(ctx context.Context, key MonthKey) error {
	r.cache.Invalidate(key)
	r.merger.Recompute()
	if _, err := r.loader.LoadMonth(ctx, key, r.filters()); err != nil {
		return fmt.Errorf("RefreshMonth: %w", err)
	}
	return nil
}

// RefreshDisplayed reloads the month last marked as displayed, if any.
func (r *RefreshScheduler) RefreshDisplayed(ctx context.Context) error {
	key, ok := r.DisplayedMonth()
	if !ok {
		return nil
	}
	return r.RefreshMonth(ctx, key)
}

// RefreshForPatch reloads every month an edit from previousDate to newDate
// may have touched. All months are attempted even when one fails.
func (r *RefreshScheduler) RefreshForPatch(ctx context.Context, previousDate, newDate string) error {
	displayed, ok := r.DisplayedMonth()
	var fallback *MonthKey
	if ok {
		fallback = &displayed
	}
	keys, err := AffectedMonths(previousDate, newDate, fallback)
	if err != nil {
		return fmt.Errorf("RefreshForPatch: %w", err)
	}
	var errs []error
	for _, key := range keys {
		if err := r.RefreshMonth(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AffectedMonths lists the months to reload after an edit. When the date
// did not change that is the displayed month (or the event's own month
// without one); otherwise the old and the new month.
func AffectedMonths(previousDate, newDate string, displayed *MonthKey) ([]MonthKey, error) {
	if newDate == "" || newDate == previousDate {
		if displayed != nil {
			return []MonthKey{*displayed}, nil
		}
		if previousDate == "" {
			return nil, nil
		}
		key, err := MonthKeyOf(previousDate)
		if err != nil {
			return nil, err
		}
		return []MonthKey{key}, nil
	}

	next, err := MonthKeyOf(newDate)
	if err != nil {
		return nil, err
	}
	if previousDate == "" {
		return []MonthKey{next}, nil
	}
	prev, err := MonthKeyOf(previousDate)
	if err != nil {
		return nil, err
	}
	if prev == next {
		return []MonthKey{prev}, nil
	}
	return []MonthKey{prev, next}, nil
}
