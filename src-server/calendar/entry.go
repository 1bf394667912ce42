package calendar

import (
	"maps"
	"slices"
	"sort"

	"golang.org/x/text/cases"
)

// CacheEntry buckets one month's events by ISO date. Each bucket keeps
// display order, see sortBucket.
type CacheEntry map[string][]Event

// FlatView is the merged date -> events mapping across every loaded month.
type FlatView map[string][]Event

func (e CacheEntry) Clone() CacheEntry {
	out := make(CacheEntry, len(e))
	for date, bucket := range e {
		out[date] = cloneBucket(bucket)
	}
	return out
}

// Dates returns the bucket keys in calendar order.
func (e CacheEntry) Dates() []string {
	return slices.Sorted(maps.Keys(e))
}

func (e CacheEntry) Len() int {
	n := 0
	for _, bucket := range e {
		n += len(bucket)
	}
	return n
}

func (v FlatView) Dates() []string {
	return slices.Sorted(maps.Keys(v))
}

func cloneBucket(bucket []Event) []Event {
	out := make([]Event, len(bucket))
	for i, ev := range bucket {
		out[i] = ev.Clone()
	}
	return out
}

// sortBucket orders a single date: timed events by start ascending,
// untimed events after all timed ones, ties by case-insensitive title
// and finally by id so the order never depends on input order.
func sortBucket(bucket []Event) {
	type sortKey struct {
		minutes int
		timed   bool
		title   string
	}
	// a Caser is stateful, never share it between goroutines
	folder := cases.Fold()
	keys := make(map[string]sortKey, len(bucket))
	for _, ev := range bucket {
		k := sortKey{title: folder.String(ev.Title)}
		if ev.ScheduledTime != "" {
			if m, err := ParseTimeOfDay(ev.ScheduledTime); err == nil {
				k.minutes, k.timed = m, true
			}
		}
		keys[ev.ID] = k
	}
	sort.SliceStable(bucket, func(i, j int) bool {
		a, b := keys[bucket[i].ID], keys[bucket[j].ID]
		if a.timed != b.timed {
			return a.timed
		}
		if a.timed && a.minutes != b.minutes {
			return a.minutes < b.minutes
		}
		if a.title != b.title {
			return a.title < b.title
		}
		return bucket[i].ID < bucket[j].ID
	})
}

// dedupeBucket keeps the last occurrence of every id, preserving the
// position of the first.
func dedupeBucket(bucket []Event) []Event {
	index := make(map[string]int, len(bucket))
	out := bucket[:0:0]
	for _, ev := range bucket {
		if i, ok := index[ev.ID]; ok {
			out[i] = ev
			continue
		}
		index[ev.ID] = len(out)
		out = append(out, ev)
	}
	return out
}
