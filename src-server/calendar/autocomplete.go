package calendar

import (
	"time"
)

// AutoCompletePolicy marks lessons and activities completed once their end
// is less than Threshold away. How close is close enough is a product
// decision, so it is configuration; zero turns the sweep off.
type AutoCompletePolicy struct {
	Threshold time.Duration
}

func (p AutoCompletePolicy) Enabled() bool {
	return p.Threshold > 0
}

func (p AutoCompletePolicy) ShouldComplete(ev Event, now time.Time, loc *time.Location) bool {
	if !p.Enabled() || !ev.Kind.NeedsTrack() {
		return false
	}
	if ev.Status != StatusPlanned && ev.Status != StatusInProgress {
		return false
	}
	end, ok := ev.EndAt(loc)
	if !ok {
		return false
	}
	return !now.Before(end.Add(-p.Threshold))
}

// Candidates walks view in date order and returns the events due for
// completion.
func (p AutoCompletePolicy) Candidates(view FlatView, now time.Time, loc *time.Location) []Event {
	if !p.Enabled() {
		return nil
	}
	var out []Event
	for _, date := range view.Dates() {
		for _, ev := range view[date] {
			if p.ShouldComplete(ev, now, loc) {
				out = append(out, ev.Clone())
			}
		}
	}
	return out
}
