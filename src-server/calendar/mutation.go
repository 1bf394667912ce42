package calendar

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultMutationTimeout = 30 * time.Second

// Callbacks are invoked from the goroutine that settles a Command, after
// the cache already reflects the outcome.
type Callbacks struct {
	OnSuccess func(Event)
	OnError   func(error)
}

// Command is one optimistic edit. It carries the forward patch that was
// applied and sent to the remote, and the rollback patch holding the
// pre-change values of exactly the fields forward touches.
type Command struct {
	ID      uuid.UUID
	EventID string
	Fields  []Field

	forward  Patch
	rollback Patch
	before   Event
	applied  Event

	done chan struct{}
	err  error
}

func (c *Command) Forward() Patch  { return c.forward }
func (c *Command) Rollback() Patch { return c.rollback }

// Applied is the event as it looked right after the optimistic write.
func (c *Command) Applied() Event { return c.applied.Clone() }

// Done is closed once the remote call returned and any rollback finished.
func (c *Command) Done() <-chan struct{} { return c.done }

// Err is nil until Done is closed, and nil afterwards when the remote
// accepted the change.
func (c *Command) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the command settles or ctx ends.
func (c *Command) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MutationCoordinator applies edits to the cache before the remote store
// confirms them and undoes them field by field when it refuses.
type MutationCoordinator struct {
	remote            Remote
	cache             *MonthCache
	merger            *EventMerger
	observer          Observer
	placeholderPrefix string

	// Timeout bounds each remote update; it is not tied to the caller's ctx
	// because the caller usually returns before the update settles.
	Timeout time.Duration
}

func NewMutationCoordinator(remote Remote, cache *MonthCache, merger *EventMerger, observer Observer, placeholderPrefix string) *MutationCoordinator {
	if observer == nil {
		observer = NopObserver{}
	}
	return &MutationCoordinator{
		remote:            remote,
		cache:             cache,
		merger:            merger,
		observer:          observer,
		placeholderPrefix: placeholderPrefix,
		Timeout:           DefaultMutationTimeout,
	}
}

// IsPlaceholder reports whether id belongs to sample data that was never
// persisted.
func (m *MutationCoordinator) IsPlaceholder(id string) bool {
	return m.placeholderPrefix != "" && strings.HasPrefix(id, m.placeholderPrefix)
}

// ApplyFieldChange writes patch into the cache right away and sends it to
// the remote store in the background. A returned error means nothing was
// written; remote failures arrive through cb.OnError and Command.Err.
func (m *MutationCoordinator) ApplyFieldChange(ctx context.Context, id string, patch Patch, cb Callbacks) (*Command, error) {
	if m.IsPlaceholder(id) {
		return nil, &PlaceholderEventError{EventID: id}
	}
	if err := patch.validate(id); err != nil {
		return nil, err
	}

	cmd := &Command{
		ID:      uuid.New(),
		EventID: id,
		done:    make(chan struct{}),
	}
	before, after, err := m.cache.replaceEvent(id, func(ev Event) (Event, error) {
		if err := checkHoliday(ev, patch); err != nil {
			return Event{}, err
		}
		forward := patch
		if err := derive(&forward, ev); err != nil {
			return Event{}, err
		}
		next := ev.Clone()
		forward.apply(&next)
		if err := checkTrack(next, forward); err != nil {
			return Event{}, err
		}
		cmd.forward = forward
		cmd.Fields = forward.Fields()
		cmd.rollback = PatchFromEvent(ev, cmd.Fields)
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	cmd.before = before
	cmd.applied = after

	m.merger.Recompute()
	m.observer.MutationApplied(id, cmd.Fields)
	slog.Debug("applied optimistic change", "event", id, "command", cmd.ID, "fields", cmd.Fields)

	go m.settle(ctx, cmd, cb)
	return cmd, nil
}

func (m *MutationCoordinator) settle(ctx context.Context, cmd *Command, cb Callbacks) {
	defer close(cmd.done)

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.Timeout)
	defer cancel()

	start := time.Now()
	err := m.remote.UpdateEvent(rctx, cmd.EventID, cmd.forward)
	m.observer.MutationSettled(cmd.EventID, time.Since(start), err)

	if err == nil {
		if cb.OnSuccess != nil {
			cb.OnSuccess(cmd.applied.Clone())
		}
		return
	}

	// only the fields this command touched go back; concurrent edits to
	// other fields of the same event survive
	if !m.cache.restoreFields(cmd.EventID, cmd.before, cmd.Fields, cmd.applied) {
		slog.Debug("rolled back event is outside the loaded months", "event", cmd.EventID)
	}
	m.merger.Recompute()

	cmd.err = &MutationRejected{EventID: cmd.EventID, Fields: slices.Clone(cmd.Fields), Err: err}
	slog.Warn("remote rejected change, rolled back", "event", cmd.EventID, "command", cmd.ID, "error", err)
	if cb.OnError != nil {
		cb.OnError(cmd.err)
	}
}

// derive fills in the time fields that follow from the ones being
// changed, using cur for whatever the patch leaves alone.
func derive(p *Patch, cur Event) error {
	startSet := p.ScheduledTime != nil
	finishSet := p.FinishTime != nil
	durationSet := p.DurationMinutes != nil

	start := cur.ScheduledTime
	if startSet {
		start = *p.ScheduledTime
	}

	if start == "" {
		switch {
		case finishSet && *p.FinishTime != "":
			return &ValidationError{EventID: cur.ID, Field: FieldFinishTime, Reason: "finish time needs a start time"}
		case startSet && cur.FinishTime != "":
			// an untimed event has no finish either
			p.FinishTime = ptr("")
		}
		return nil
	}
	startMin, err := ParseTimeOfDay(start)
	if err != nil {
		return &ValidationError{EventID: cur.ID, Field: FieldScheduledTime, Reason: err.Error()}
	}

	switch {
	case finishSet && *p.FinishTime != "":
		finishMin, err := ParseTimeOfDay(*p.FinishTime)
		if err != nil {
			return &ValidationError{EventID: cur.ID, Field: FieldFinishTime, Reason: err.Error()}
		}
		// a finish before the start means the event runs past midnight
		p.DurationMinutes = ptr(DurationBetween(startMin, finishMin))
	case finishSet:
		// finish cleared, duration stays as the only length
	case startSet || durationSet:
		duration := cur.DurationMinutes
		if durationSet {
			duration = p.DurationMinutes
		}
		switch {
		case duration != nil:
			p.FinishTime = ptr(FormatTimeOfDay(FinishFrom(startMin, *duration)))
		case cur.FinishTime != "":
			finishMin, err := ParseTimeOfDay(cur.FinishTime)
			if err == nil {
				p.DurationMinutes = ptr(DurationBetween(startMin, finishMin))
			}
		}
	}
	return nil
}

// fields a holiday keeps; it has no schedule, status or assignees
var holidayFields = []Field{FieldTitle, FieldScheduledDate, FieldDescription, FieldTrackID, FieldActivityID}

func checkHoliday(ev Event, p Patch) error {
	if ev.Kind != KindHoliday {
		return nil
	}
	for _, field := range p.Fields() {
		if !slices.Contains(holidayFields, field) {
			return &ValidationError{EventID: ev.ID, Field: field, Reason: "holidays only take a title, date and description"}
		}
	}
	return nil
}

// lessons and activities can't lose their track or activity, holidays
// never get one
func checkTrack(ev Event, p Patch) error {
	if ev.Kind.NeedsTrack() {
		switch {
		case ev.TrackID == "":
			return &ValidationError{EventID: ev.ID, Field: FieldTrackID, Reason: "a " + string(ev.Kind) + " needs a track"}
		case ev.ActivityID == "":
			return &ValidationError{EventID: ev.ID, Field: FieldActivityID, Reason: "a " + string(ev.Kind) + " needs an activity"}
		}
		return nil
	}
	if (p.TrackID != nil && *p.TrackID != "") || (p.ActivityID != nil && *p.ActivityID != "") {
		return &ValidationError{EventID: ev.ID, Field: FieldTrackID, Reason: "holidays don't belong to a track"}
	}
	return nil
}
