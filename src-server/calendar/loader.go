package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// CacheLoader fetches one month from the remote store, normalizes it
// into a CacheEntry and hands it to the cache.
//
// Concurrent loads of the same month with the same filters share one
// fetch. A load that resolves after a newer load, Put or Invalidate of
// its month is dropped instead of being written.
type CacheLoader struct {
	remote   Remote
	cache    *MonthCache
	merger   *EventMerger
	observer Observer

	mu       sync.Mutex
	flights  map[MonthKey]*flight
	children []ChildRef
}

type flight struct {
	ticket  uint64
	filters Filters
	done    chan struct{}
	entry   CacheEntry
	err     error
}

func NewCacheLoader(remote Remote, cache *MonthCache, merger *EventMerger, observer Observer) *CacheLoader {
	if observer == nil {
		observer = NopObserver{}
	}
	return &CacheLoader{
		remote:   remote,
		cache:    cache,
		merger:   merger,
		observer: observer,
		flights:  make(map[MonthKey]*flight),
	}
}

// LoadMonth moves key through Loading to Loaded. On failure the month goes
// back to NotLoaded with no entry and a *FetchError is returned.
func (l *CacheLoader) LoadMonth(ctx context.Context, key MonthKey, filters Filters) (CacheEntry, error) {
	l.mu.Lock()
	if f, ok := l.flights[key]; ok && f.filters == filters && f.ticket == l.cache.currentTicket(key) {
		l.mu.Unlock()
		select {
		case <-f.done:
			if f.err != nil {
				return nil, f.err
			}
			return f.entry.Clone(), nil
		case <-ctx.Done():
			return nil, &FetchError{Key: key, Err: ctx.Err()}
		}
	}
	f := &flight{
		ticket:  l.cache.beginLoad(key),
		filters: filters,
		done:    make(chan struct{}),
	}
	l.flights[key] = f
	l.mu.Unlock()

	start := time.Now()
	entry, children, err := l.fetch(ctx, key, filters)
	l.observer.LoadFinished(key, time.Since(start), err)

	switch {
	case err != nil:
		f.err = &FetchError{Key: key, Err: err}
		if l.cache.failLoad(key, f.ticket) {
			l.merger.Recompute()
		}
		slog.Warn("can't load month", "month", key.String(), "family", filters.FamilyID, "error", err)
	default:
		f.entry = entry
		if l.cache.finishLoad(key, f.ticket, entry) {
			l.merger.Recompute()
			l.mu.Lock()
			l.children = children
			l.mu.Unlock()
		} else {
			slog.Debug("discarding stale month load", "month", key.String(), "ticket", f.ticket)
		}
	}

	l.mu.Lock()
	if l.flights[key] == f {
		delete(l.flights, key)
	}
	l.mu.Unlock()
	close(f.done)

	if f.err != nil {
		return nil, f.err
	}
	return f.entry.Clone(), nil
}

// Children reported by the most recent successful load.
func (l *CacheLoader) Children() []ChildRef {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.children)
}

func (l *CacheLoader) fetch(ctx context.Context, key MonthKey, filters Filters) (CacheEntry, []ChildRef, error) {
	feed, err := l.remote.FetchMonthEvents(ctx, filters.FamilyID, key.Year, key.Month, filters.ChildID)
	if err != nil {
		return nil, nil, fmt.Errorf("FetchMonthEvents: %w", err)
	}
	from, to := key.DateRange()
	holidays, err := l.remote.FetchHolidays(ctx, filters.FamilyID, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("FetchHolidays: %w", err)
	}
	if feed == nil {
		feed = &MonthFeed{}
	}
	return BuildEntry(key, feed, holidays), feed.Children, nil
}

// BuildEntry normalizes the three feeds of a month into a sorted entry.
// Records dated outside key are dropped.
func BuildEntry(key MonthKey, feed *MonthFeed, holidays []RawHoliday) CacheEntry {
	entry := make(CacheEntry)
	add := func(ev Event) {
		if !key.Contains(ev.ScheduledDate) {
			slog.Warn("dropping event outside of its month", "month", key.String(), "event", ev.ID, "date", ev.ScheduledDate)
			return
		}
		entry[ev.ScheduledDate] = append(entry[ev.ScheduledDate], ev)
	}

	for _, date := range slices.Sorted(maps.Keys(feed.EventsByDate)) {
		for _, raw := range feed.EventsByDate[date] {
			ev, err := NormalizeRawEvent(date, raw)
			if err != nil {
				slog.Warn("skipping malformed event", "month", key.String(), "error", err)
				continue
			}
			add(ev)
		}
	}
	for _, raw := range holidays {
		ev, err := NormalizeHoliday(raw)
		if err != nil {
			slog.Warn("skipping malformed holiday", "month", key.String(), "error", err)
			continue
		}
		add(ev)
	}

	for date, bucket := range entry {
		bucket = dedupeBucket(bucket)
		sortBucket(bucket)
		entry[date] = bucket
	}
	return entry
}

// NormalizeRawEvent turns a stored lesson or activity into a cache Event.
// dateKey is the bucket the store filed it under and is only used when
// the record itself carries no date.
func NormalizeRawEvent(dateKey string, raw RawEvent) (Event, error) {
	if strings.TrimSpace(raw.ID) == "" {
		return Event{}, fmt.Errorf("NormalizeRawEvent: event without id on %s", dateKey)
	}

	ev := Event{
		ID:          raw.ID,
		Kind:        Kind(strings.ToLower(strings.TrimSpace(raw.Kind))),
		Title:       strings.TrimSpace(raw.Title),
		Status:      NormalizeStatus(raw.Status),
		Assignees:   ParseAssignees(raw.Assignees),
		Description: raw.Description,
		ChildID:     raw.ChildID,
		SubjectName: raw.SubjectName,
		YearPlanID:  deref(raw.YearPlanID),
		SeriesID:    deref(raw.SeriesID),
	}
	if !ev.Kind.Valid() {
		ev.Kind = KindLesson
	}
	if ev.Title == "" {
		ev.Title = strings.TrimSpace(raw.SubjectName)
	}
	if ev.Kind.NeedsTrack() {
		ev.TrackID = deref(raw.TrackID)
		ev.ActivityID = deref(raw.ActivityID)
	}

	// date: explicit field, then the start_local timestamp, then the bucket
	ev.ScheduledDate = strings.TrimSpace(raw.Date)
	startLocal := strings.TrimSpace(deref(raw.StartLocal))
	if ev.ScheduledDate == "" {
		if date, _, ok := splitTimestamp(startLocal); ok {
			ev.ScheduledDate = date
		} else {
			ev.ScheduledDate = dateKey
		}
	}
	if err := ValidateDate(ev.ScheduledDate); err != nil {
		return Event{}, fmt.Errorf("NormalizeRawEvent: event %s: %w", raw.ID, err)
	}

	finishLocal := strings.TrimSpace(deref(raw.FinishLocal))
	if startLocal != "" && (raw.NilStartIsUntimed || !isAllDayStamp(startLocal, finishLocal)) {
		if t, err := CanonicalTime(startLocal); err == nil {
			ev.ScheduledTime = t
		} else {
			slog.Warn("ignoring unparsable start time", "event", raw.ID, "value", startLocal)
		}
	}
	if finishLocal != "" && ev.ScheduledTime != "" {
		if t, err := CanonicalTime(finishLocal); err == nil {
			ev.FinishTime = t
		} else {
			slog.Warn("ignoring unparsable finish time", "event", raw.ID, "value", finishLocal)
		}
	}
	if raw.Duration != nil && *raw.Duration >= 0 {
		d := *raw.Duration
		ev.DurationMinutes = &d
	}
	deriveStored(&ev)

	return ev, nil
}

func NormalizeHoliday(raw RawHoliday) (Event, error) {
	if strings.TrimSpace(raw.ID) == "" {
		return Event{}, fmt.Errorf("NormalizeHoliday: holiday without id on %s", raw.Date)
	}
	if err := ValidateDate(raw.Date); err != nil {
		return Event{}, fmt.Errorf("NormalizeHoliday: holiday %s: %w", raw.ID, err)
	}
	title := strings.TrimSpace(raw.Name)
	if title == "" {
		title = "Holiday"
	}
	return Event{
		ID:            raw.ID,
		Kind:          KindHoliday,
		Title:         title,
		ScheduledDate: raw.Date,
		Status:        StatusPlanned,
		Assignees:     []string{},
		Description:   raw.Description,
	}, nil
}

// deriveStored keeps the stored duration consistent with start/finish:
// start+finish win over a stored duration, start+duration fill in finish.
func deriveStored(ev *Event) {
	if ev.ScheduledTime == "" {
		return
	}
	start, _ := ParseTimeOfDay(ev.ScheduledTime)
	switch {
	case ev.FinishTime != "":
		finish, _ := ParseTimeOfDay(ev.FinishTime)
		d := DurationBetween(start, finish)
		ev.DurationMinutes = &d
	case ev.DurationMinutes != nil:
		ev.FinishTime = FormatTimeOfDay(FinishFrom(start, *ev.DurationMinutes))
	}
}

// a start_local of exactly midnight with no finish (or a midnight finish)
// is how older records mark whole-day events
func isAllDayStamp(start, finish string) bool {
	_, clock, ok := splitTimestamp(start)
	if !ok || !isMidnight(clock) {
		return false
	}
	if finish == "" {
		return true
	}
	_, fclock, ok := splitTimestamp(finish)
	return ok && isMidnight(fclock)
}

func isMidnight(clock string) bool {
	m, err := ParseTimeOfDay(clock)
	return err == nil && m == 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
