package calendar

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// MonthCache is the month-partitioned event store. Every read returns a
// copy; every write replaces or edits a bucket under the lock.
//
// Loads go through a ticket protocol: beginLoad hands out a monotonically
// increasing ticket and only the latest ticket for a key may complete.
// Invalidate and Put also advance the ticket, so a slow response that
// started earlier can never overwrite newer state.
type MonthCache struct {
	mu       sync.RWMutex
	entries  map[MonthKey]CacheEntry
	states   map[MonthKey]LoadState
	latest   map[MonthKey]uint64
	seq      uint64
	observer Observer
}

func NewMonthCache(observer Observer) *MonthCache {
	if observer == nil {
		observer = NopObserver{}
	}
	return &MonthCache{
		entries:  make(map[MonthKey]CacheEntry),
		states:   make(map[MonthKey]LoadState),
		latest:   make(map[MonthKey]uint64),
		observer: observer,
	}
}

func (c *MonthCache) Get(key MonthKey) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return entry.Clone(), true
}

// Put replaces a month wholesale and marks it Loaded.
func (c *MonthCache) Put(key MonthKey, entry CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextTicket(key)
	c.entries[key] = entry.Clone()
	c.setState(key, Loaded)
}

// Invalidate drops a month and resets it to NotLoaded. Any load still in
// flight for it is discarded when it resolves.
func (c *MonthCache) Invalidate(key MonthKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextTicket(key)
	delete(c.entries, key)
	c.setState(key, NotLoaded)
}

// InvalidateAll is Invalidate for every month the cache knows about.
func (c *MonthCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.states {
		c.nextTicket(key)
		delete(c.entries, key)
		c.setState(key, NotLoaded)
	}
}

func (c *MonthCache) State(key MonthKey) LoadState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.states[key]
}

// Keys lists the months that currently hold an entry, oldest first.
func (c *MonthCache) Keys() []MonthKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedKeys()
}

// Merge concatenates every present entry into one date -> events view.
// Buckets never overlap across months, so only ids inside a bucket are
// de-duplicated.
func (c *MonthCache) Merge() FlatView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	view := make(FlatView)
	for _, key := range c.sortedKeys() {
		for date, bucket := range c.entries[key] {
			view[date] = dedupeBucket(append(view[date], cloneBucket(bucket)...))
		}
	}
	return view
}

// Find returns a copy of the event and the month holding it.
func (c *MonthCache) Find(id string) (Event, MonthKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, date, idx, ok := c.find(id)
	if !ok {
		return Event{}, MonthKey{}, false
	}
	return c.entries[key][date][idx].Clone(), key, true
}

func (c *MonthCache) beginLoad(key MonthKey) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ticket := c.nextTicket(key)
	c.setState(key, Loading)
	return ticket
}

func (c *MonthCache) currentTicket(key MonthKey) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest[key]
}

// finishLoad stores the entry only if ticket is still the latest one.
func (c *MonthCache) finishLoad(key MonthKey, ticket uint64, entry CacheEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest[key] != ticket {
		return false
	}
	c.entries[key] = entry.Clone()
	c.setState(key, Loaded)
	return true
}

// failLoad leaves the month empty and retryable.
func (c *MonthCache) failLoad(key MonthKey, ticket uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest[key] != ticket {
		return false
	}
	delete(c.entries, key)
	c.setState(key, NotLoaded)
	return true
}

// replaceEvent runs fn against a copy of the event and writes the result
// back, moving it between buckets when its date changed. Nothing is
// written when fn fails.
func (c *MonthCache) replaceEvent(id string, fn func(Event) (Event, error)) (Event, Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, date, idx, ok := c.find(id)
	if !ok {
		return Event{}, Event{}, ErrEventNotFound
	}
	before := c.entries[key][date][idx].Clone()
	after, err := fn(before.Clone())
	if err != nil {
		return Event{}, Event{}, err
	}
	if after.ScheduledDate == date {
		c.entries[key][date][idx] = after.Clone()
		sortBucket(c.entries[key][date])
	} else {
		c.removeAt(key, date, idx)
		if !c.insert(after) {
			slog.Debug("event moved to a month that isn't loaded", "event", id, "date", after.ScheduledDate)
		}
	}
	return before, after, nil
}

// restoreFields copies fields from values onto the cached event. When the
// event is no longer cached (it moved to a month that isn't loaded),
// fallback is re-inserted with those fields applied instead.
func (c *MonthCache) restoreFields(id string, values Event, fields []Field, fallback Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, date, idx, ok := c.find(id)
	if !ok {
		ev := fallback.Clone()
		copyFields(&ev, values, fields)
		return c.insert(ev)
	}
	ev := c.entries[key][date][idx].Clone()
	copyFields(&ev, values, fields)
	if ev.ScheduledDate == date {
		c.entries[key][date][idx] = ev
		sortBucket(c.entries[key][date])
		return true
	}
	c.removeAt(key, date, idx)
	return c.insert(ev)
}

// caller holds the lock
func (c *MonthCache) find(id string) (MonthKey, string, int, bool) {
	for key, entry := range c.entries {
		for date, bucket := range entry {
			for i, ev := range bucket {
				if ev.ID == id {
					return key, date, i, true
				}
			}
		}
	}
	return MonthKey{}, "", 0, false
}

func (c *MonthCache) removeAt(key MonthKey, date string, idx int) {
	bucket := slices.Delete(c.entries[key][date], idx, idx+1)
	if len(bucket) == 0 {
		delete(c.entries[key], date)
		return
	}
	c.entries[key][date] = bucket
}

// insert places ev in its date bucket if the owning month is loaded.
func (c *MonthCache) insert(ev Event) bool {
	key, err := MonthKeyOf(ev.ScheduledDate)
	if err != nil {
		return false
	}
	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	bucket := dedupeBucket(append(entry[ev.ScheduledDate], ev.Clone()))
	sortBucket(bucket)
	entry[ev.ScheduledDate] = bucket
	return true
}

func (c *MonthCache) nextTicket(key MonthKey) uint64 {
	c.seq++
	c.latest[key] = c.seq
	return c.seq
}

func (c *MonthCache) setState(key MonthKey, to LoadState) {
	from := c.states[key]
	c.states[key] = to
	if from != to {
		c.observer.LoadStateChanged(key, from, to)
	}
}

func (c *MonthCache) sortedKeys() []MonthKey {
	return slices.SortedFunc(maps.Keys(c.entries), func(a, b MonthKey) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return 0
	})
}
