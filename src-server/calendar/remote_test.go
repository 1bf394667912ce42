package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockRemote is the testify mock of Remote, used where a test cares about
// the exact calls.
type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) FetchMonthEvents(ctx context.Context, familyID string, year, month int, childID string) (*MonthFeed, error) {
	args := m.Called(ctx, familyID, year, month, childID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MonthFeed), args.Error(1)
}

func (m *mockRemote) FetchHolidays(ctx context.Context, familyID string, from, to string) ([]RawHoliday, error) {
	args := m.Called(ctx, familyID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]RawHoliday), args.Error(1)
}

func (m *mockRemote) InsertEvent(ctx context.Context, record NewEvent) (string, error) {
	args := m.Called(ctx, record)
	return args.String(0), args.Error(1)
}

func (m *mockRemote) UpdateEvent(ctx context.Context, id string, patch Patch) error {
	args := m.Called(ctx, id, patch)
	return args.Error(0)
}

func (m *mockRemote) DeleteEvent(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// fakeRemote is a small in-memory store that actually applies writes, for
// tests that reload months after editing them.
type fakeRemote struct {
	mu        sync.Mutex
	events    map[string]RawEvent
	holidays  []RawHoliday
	children  []ChildRef
	fetchErr  error
	updateErr error
	fetches   int
	updates   []Patch
	// when set, UpdateEvent blocks until it is closed
	gate chan struct{}
	// when set, FetchMonthEvents blocks until it is closed
	fetchGate chan struct{}
}

func newFakeRemote(events ...RawEvent) *fakeRemote {
	f := &fakeRemote{events: make(map[string]RawEvent)}
	for _, ev := range events {
		f.events[ev.ID] = ev
	}
	return f
}

func (f *fakeRemote) FetchMonthEvents(ctx context.Context, familyID string, year, month int, childID string) (*MonthFeed, error) {
	f.mu.Lock()
	gate := f.fetchGate
	f.fetches++
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	key := MonthKey{Year: year, Month: month}
	feed := &MonthFeed{EventsByDate: map[string][]RawEvent{}, Children: f.children}
	for _, ev := range f.events {
		if !key.Contains(ev.Date) {
			continue
		}
		if childID != "" && ev.ChildID != childID {
			continue
		}
		feed.EventsByDate[ev.Date] = append(feed.EventsByDate[ev.Date], ev)
	}
	return feed, nil
}

func (f *fakeRemote) FetchHolidays(ctx context.Context, familyID string, from, to string) ([]RawHoliday, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []RawHoliday
	for _, h := range f.holidays {
		if h.Date >= from && h.Date <= to {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeRemote) InsertEvent(ctx context.Context, record NewEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("new-%d", len(f.events)+1)
	raw := RawEvent{
		ID:         id,
		Title:      record.Title,
		Kind:       string(record.Kind),
		Date:       record.ScheduledDate,
		Status:     string(record.Status),
		TrackID:    ptr(record.TrackID),
		ActivityID: ptr(record.ActivityID),
		Duration:   record.DurationMinutes,
	}
	if record.ScheduledTime != "" {
		raw.StartLocal = ptr(record.ScheduledTime)
	}
	f.events[id] = raw
	return id, nil
}

func (f *fakeRemote) UpdateEvent(ctx context.Context, id string, patch Patch) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, patch)
	if f.updateErr != nil {
		return f.updateErr
	}
	ev, ok := f.events[id]
	if !ok {
		return errors.New("no such event")
	}
	if patch.Title != nil {
		ev.Title = *patch.Title
	}
	if patch.ScheduledDate != nil {
		ev.Date = *patch.ScheduledDate
	}
	if patch.ScheduledTime != nil {
		ev.StartLocal = ptr(*patch.ScheduledTime)
	}
	if patch.FinishTime != nil {
		ev.FinishLocal = ptr(*patch.FinishTime)
	}
	if patch.DurationMinutes != nil {
		ev.Duration = ptr(*patch.DurationMinutes)
	}
	if patch.Status != nil {
		ev.Status = string(*patch.Status)
	}
	f.events[id] = ev
	return nil
}

func (f *fakeRemote) DeleteEvent(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[id]; !ok {
		return errors.New("no such event")
	}
	delete(f.events, id)
	return nil
}

func (f *fakeRemote) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func lesson(id, date, start string, duration int) RawEvent {
	ev := RawEvent{
		ID:         id,
		Title:      "Lesson " + id,
		Kind:       "lesson",
		Date:       date,
		Status:     "planned",
		TrackID:    ptr("track-1"),
		ActivityID: ptr("activity-1"),
	}
	if start != "" {
		ev.StartLocal = ptr(start)
	}
	if duration > 0 {
		ev.Duration = ptr(duration)
	}
	return ev
}

var aug2025 = MonthKey{Year: 2025, Month: 7}

// loadedStore returns a store over remote with the given months loaded.
func loadedStore(t *testing.T, remote Remote, keys ...MonthKey) *CacheStore {
	t.Helper()
	store := NewCacheStore(remote, Options{
		Filters:  Filters{FamilyID: "family-1"},
		Location: time.UTC,
	})
	for _, key := range keys {
		_, err := store.EnsureLoaded(context.Background(), key)
		require.NoError(t, err)
	}
	return store
}

func waitSettled(t *testing.T, cmd *Command) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case <-cmd.Done():
		return cmd.Err()
	case <-ctx.Done():
		t.Fatalf("command for %s never settled", cmd.EventID)
		return nil
	}
}

func findInView(view FlatView, id string) (Event, bool) {
	for _, bucket := range view {
		for _, ev := range bucket {
			if ev.ID == id {
				return ev, true
			}
		}
	}
	return Event{}, false
}
