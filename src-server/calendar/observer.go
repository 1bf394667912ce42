package calendar

import "time"

// Observer receives cache lifecycle notifications, typically to feed
// metrics. Calls happen synchronously, so implementations must be quick
// and must not call back into the cache.
type Observer interface {
	LoadStateChanged(key MonthKey, from, to LoadState)
	LoadFinished(key MonthKey, elapsed time.Duration, err error)
	MutationApplied(eventID string, fields []Field)
	MutationSettled(eventID string, elapsed time.Duration, err error)
}

type NopObserver struct{}

func (NopObserver) LoadStateChanged(MonthKey, LoadState, LoadState) {}
func (NopObserver) LoadFinished(MonthKey, time.Duration, error)     {}
func (NopObserver) MutationApplied(string, []Field)                 {}
func (NopObserver) MutationSettled(string, time.Duration, error)    {}
