package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const DefaultPlaceholderPrefix = "fallback-"

type Options struct {
	Observer          Observer
	PlaceholderPrefix string
	Location          *time.Location
	AutoComplete      AutoCompletePolicy
	Filters           Filters
	MutationTimeout   time.Duration
}

// CacheStore is one family's calendar session. It owns a cache and the
// components working on it; separate stores share nothing.
type CacheStore struct {
	remote    Remote
	cache     *MonthCache
	merger    *EventMerger
	loader    *CacheLoader
	mutations *MutationCoordinator
	refresher *RefreshScheduler
	policy    AutoCompletePolicy
	loc       *time.Location

	mu      sync.RWMutex
	filters Filters
}

func NewCacheStore(remote Remote, opts Options) *CacheStore {
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.PlaceholderPrefix == "" {
		opts.PlaceholderPrefix = DefaultPlaceholderPrefix
	}

	s := &CacheStore{
		remote:  remote,
		policy:  opts.AutoComplete,
		loc:     opts.Location,
		filters: opts.Filters,
	}
	s.cache = NewMonthCache(opts.Observer)
	s.merger = NewEventMerger(s.cache)
	s.loader = NewCacheLoader(remote, s.cache, s.merger, opts.Observer)
	s.mutations = NewMutationCoordinator(remote, s.cache, s.merger, opts.Observer, opts.PlaceholderPrefix)
	if opts.MutationTimeout > 0 {
		s.mutations.Timeout = opts.MutationTimeout
	}
	s.refresher = NewRefreshScheduler(s.loader, s.cache, s.merger, s.Filters)
	return s
}

func (s *CacheStore) Filters() Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

func (s *CacheStore) Location() *time.Location { return s.loc }

func (s *CacheStore) Cache() *MonthCache { return s.cache }

// GetFlatView is the merged view restricted to one month. It holds
// nothing for a month that isn't loaded.
func (s *CacheStore) GetFlatView(key MonthKey) FlatView {
	return s.merger.MonthView(key)
}

// View is the merged view across every loaded month.
func (s *CacheStore) View() FlatView {
	return s.merger.View()
}

func (s *CacheStore) State(key MonthKey) LoadState {
	return s.cache.State(key)
}

func (s *CacheStore) Children() []ChildRef {
	return s.loader.Children()
}

// EnsureLoaded loads key unless it is already loaded, then returns its
// view.
func (s *CacheStore) EnsureLoaded(ctx context.Context, key MonthKey) (FlatView, error) {
	if s.cache.State(key) != Loaded {
		if _, err := s.loader.LoadMonth(ctx, key, s.Filters()); err != nil {
			return nil, err
		}
	}
	return s.GetFlatView(key), nil
}

func (s *CacheStore) ApplyFieldChange(ctx context.Context, id string, patch Patch, cb Callbacks) (*Command, error) {
	return s.mutations.ApplyFieldChange(ctx, id, patch, cb)
}

func (s *CacheStore) RefreshMonth(ctx context.Context, key MonthKey) error {
	return s.refresher.RefreshMonth(ctx, key)
}

func (s *CacheStore) RefreshForPatch(ctx context.Context, previousDate, newDate string) error {
	return s.refresher.RefreshForPatch(ctx, previousDate, newDate)
}

func (s *CacheStore) RefreshDisplayed(ctx context.Context) error {
	return s.refresher.RefreshDisplayed(ctx)
}

func (s *CacheStore) SetDisplayedMonth(key MonthKey) {
	s.refresher.SetDisplayedMonth(key)
}

func (s *CacheStore) DisplayedMonth() (MonthKey, bool) {
	return s.refresher.DisplayedMonth()
}

// SetChildFilter narrows later loads to one child ("" for everyone). Every
// month is dropped since its contents were loaded under the old filter.
func (s *CacheStore) SetChildFilter(childID string) {
	s.mu.Lock()
	changed := s.filters.ChildID != childID
	s.filters.ChildID = childID
	s.mu.Unlock()
	if !changed {
		return
	}
	s.cache.InvalidateAll()
	s.merger.Recompute()
}

// CreateEvent inserts a new event and reloads its month when that month
// is in use. The event is not visible before that reload.
func (s *CacheStore) CreateEvent(ctx context.Context, record NewEvent) (string, error) {
	record.FamilyID = s.Filters().FamilyID
	if err := PrepareNewEvent(&record); err != nil {
		return "", err
	}
	id, err := s.remote.InsertEvent(ctx, record)
	if err != nil {
		return "", fmt.Errorf("InsertEvent: %w", err)
	}
	key, _ := MonthKeyOf(record.ScheduledDate)
	if s.cache.State(key) != NotLoaded {
		if err := s.RefreshMonth(ctx, key); err != nil {
			slog.Warn("event created but its month didn't reload", "event", id, "error", err)
		}
	}
	return id, nil
}

// DeleteEvent removes an event remotely and reloads the month that held
// it.
func (s *CacheStore) DeleteEvent(ctx context.Context, id string) error {
	if s.mutations.IsPlaceholder(id) {
		return &PlaceholderEventError{EventID: id}
	}
	_, key, cached := s.cache.Find(id)
	if err := s.remote.DeleteEvent(ctx, id); err != nil {
		return fmt.Errorf("DeleteEvent: %w", err)
	}
	if !cached {
		return nil
	}
	if err := s.RefreshMonth(ctx, key); err != nil {
		slog.Warn("event deleted but its month didn't reload", "event", id, "error", err)
	}
	return nil
}

// AutoComplete completes every loaded event the policy considers done at
// now. Events it could not change are reported in the joined error.
func (s *CacheStore) AutoComplete(ctx context.Context, now time.Time) ([]*Command, error) {
	var (
		cmds []*Command
		errs []error
	)
	for _, ev := range s.policy.Candidates(s.View(), now, s.loc) {
		if s.mutations.IsPlaceholder(ev.ID) {
			continue
		}
		cmd, err := s.ApplyFieldChange(ctx, ev.ID, Patch{Status: ptr(StatusCompleted)}, Callbacks{})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cmds = append(cmds, cmd)
	}
	return cmds, errors.Join(errs...)
}

// PrepareNewEvent validates record and fills in defaults and derived time
// fields the same way an edit would.
func PrepareNewEvent(record *NewEvent) error {
	record.Title = strings.TrimSpace(record.Title)
	if record.Title == "" {
		return &ValidationError{Field: FieldTitle, Reason: "title can't be blank"}
	}
	if record.Kind == "" {
		record.Kind = KindLesson
	}
	if !record.Kind.Valid() {
		return &ValidationError{Reason: "unknown kind " + string(record.Kind)}
	}
	if err := ValidateDate(record.ScheduledDate); err != nil {
		return &ValidationError{Field: FieldScheduledDate, Reason: err.Error()}
	}
	if record.Status == "" {
		record.Status = StatusPlanned
	}
	if !record.Status.Valid() {
		return &ValidationError{Field: FieldStatus, Reason: "unknown status " + string(record.Status)}
	}
	if record.Kind.NeedsTrack() {
		if record.TrackID == "" {
			return &ValidationError{Field: FieldTrackID, Reason: "a " + string(record.Kind) + " needs a track"}
		}
		if record.ActivityID == "" {
			return &ValidationError{Field: FieldActivityID, Reason: "a " + string(record.Kind) + " needs an activity"}
		}
	} else {
		record.TrackID, record.ActivityID = "", ""
	}
	record.Assignees = normalizeSet(record.Assignees)

	ev := Event{Kind: record.Kind}
	p := Patch{DurationMinutes: record.DurationMinutes}
	if record.ScheduledTime != "" {
		p.ScheduledTime = ptr(record.ScheduledTime)
	}
	if record.FinishTime != "" {
		p.FinishTime = ptr(record.FinishTime)
	}
	if p.IsEmpty() {
		return nil
	}
	if err := p.validate(""); err != nil {
		return err
	}
	if err := derive(&p, ev); err != nil {
		return err
	}
	p.apply(&ev)
	record.ScheduledTime = ev.ScheduledTime
	record.FinishTime = ev.FinishTime
	record.DurationMinutes = ev.DurationMinutes
	return nil
}
