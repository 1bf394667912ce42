package calendar

import "sync"

// EventMerger keeps the flat view consumers read. It must be recomputed
// after every change to the cache so the view never lags behind it.
type EventMerger struct {
	cache *MonthCache

	mu      sync.RWMutex
	view    FlatView
	version uint64
}

func NewEventMerger(cache *MonthCache) *EventMerger {
	return &EventMerger{cache: cache, view: FlatView{}}
}

// Recompute rebuilds the flat view from the cache. The merge happens
// under the merger's lock so views are published in the order they were
// taken; the cache never calls back into the merger.
func (m *EventMerger) Recompute() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view = m.cache.Merge()
	m.version++
}

// View returns a copy of the whole flat view.
func (m *EventMerger) View() FlatView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(FlatView, len(m.view))
	for date, bucket := range m.view {
		out[date] = cloneBucket(bucket)
	}
	return out
}

// MonthView returns the part of the flat view that falls inside key.
func (m *EventMerger) MonthView(key MonthKey) FlatView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(FlatView)
	for date, bucket := range m.view {
		if key.Contains(date) {
			out[date] = cloneBucket(bucket)
		}
	}
	return out
}

// Version increases on every Recompute.
func (m *EventMerger) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}
