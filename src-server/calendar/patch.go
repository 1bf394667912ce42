package calendar

import (
	"slices"
	"strings"
)

// Field names one editable property of an Event.
type Field string

const (
	FieldTitle         Field = "title"
	FieldScheduledDate Field = "scheduledDate"
	FieldScheduledTime Field = "scheduledTime"
	FieldFinishTime    Field = "finishTime"
	FieldDuration      Field = "durationMinutes"
	FieldStatus        Field = "status"
	FieldAssignees     Field = "assignees"
	FieldTrackID       Field = "trackId"
	FieldActivityID    Field = "activityId"
	FieldDescription   Field = "description"
)

// Patch is a partial update. Nil fields are left alone; an empty string
// clears an optional field.
type Patch struct {
	Title           *string   `json:"title,omitempty"`
	ScheduledDate   *string   `json:"scheduledDate,omitempty"`
	ScheduledTime   *string   `json:"scheduledTime,omitempty"`
	FinishTime      *string   `json:"finishTime,omitempty"`
	DurationMinutes *int      `json:"durationMinutes,omitempty"`
	Status          *Status   `json:"status,omitempty"`
	Assignees       *[]string `json:"assignees,omitempty"`
	TrackID         *string   `json:"trackId,omitempty"`
	ActivityID      *string   `json:"activityId,omitempty"`
	Description     *string   `json:"description,omitempty"`
}

// Fields lists the fields the patch touches, in a fixed order.
func (p Patch) Fields() []Field {
	var out []Field
	if p.Title != nil {
		out = append(out, FieldTitle)
	}
	if p.ScheduledDate != nil {
		out = append(out, FieldScheduledDate)
	}
	if p.ScheduledTime != nil {
		out = append(out, FieldScheduledTime)
	}
	if p.FinishTime != nil {
		out = append(out, FieldFinishTime)
	}
	if p.DurationMinutes != nil {
		out = append(out, FieldDuration)
	}
	if p.Status != nil {
		out = append(out, FieldStatus)
	}
	if p.Assignees != nil {
		out = append(out, FieldAssignees)
	}
	if p.TrackID != nil {
		out = append(out, FieldTrackID)
	}
	if p.ActivityID != nil {
		out = append(out, FieldActivityID)
	}
	if p.Description != nil {
		out = append(out, FieldDescription)
	}
	return out
}

func (p Patch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// DateChange reports the new scheduled date, if the patch moves the event.
func (p Patch) DateChange() (string, bool) {
	if p.ScheduledDate == nil {
		return "", false
	}
	return *p.ScheduledDate, true
}

// apply writes every set field of the patch onto ev
func (p Patch) apply(ev *Event) {
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.ScheduledDate != nil {
		ev.ScheduledDate = *p.ScheduledDate
	}
	if p.ScheduledTime != nil {
		ev.ScheduledTime = *p.ScheduledTime
	}
	if p.FinishTime != nil {
		ev.FinishTime = *p.FinishTime
	}
	if p.DurationMinutes != nil {
		d := *p.DurationMinutes
		ev.DurationMinutes = &d
	}
	if p.Status != nil {
		ev.Status = *p.Status
	}
	if p.Assignees != nil {
		ev.Assignees = normalizeSet(*p.Assignees)
	}
	if p.TrackID != nil {
		ev.TrackID = *p.TrackID
	}
	if p.ActivityID != nil {
		ev.ActivityID = *p.ActivityID
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
}

// PatchFromEvent builds the patch that sets fields to their values in ev.
func PatchFromEvent(ev Event, fields []Field) Patch {
	var p Patch
	for _, f := range fields {
		switch f {
		case FieldTitle:
			p.Title = ptr(ev.Title)
		case FieldScheduledDate:
			p.ScheduledDate = ptr(ev.ScheduledDate)
		case FieldScheduledTime:
			p.ScheduledTime = ptr(ev.ScheduledTime)
		case FieldFinishTime:
			p.FinishTime = ptr(ev.FinishTime)
		case FieldDuration:
			if ev.DurationMinutes != nil {
				p.DurationMinutes = ptr(*ev.DurationMinutes)
			}
		case FieldStatus:
			p.Status = ptr(ev.Status)
		case FieldAssignees:
			p.Assignees = ptr(slices.Clone(ev.Assignees))
		case FieldTrackID:
			p.TrackID = ptr(ev.TrackID)
		case FieldActivityID:
			p.ActivityID = ptr(ev.ActivityID)
		case FieldDescription:
			p.Description = ptr(ev.Description)
		}
	}
	return p
}

// copyFields copies the listed fields from src onto dst and nothing else.
func copyFields(dst *Event, src Event, fields []Field) {
	for _, f := range fields {
		switch f {
		case FieldTitle:
			dst.Title = src.Title
		case FieldScheduledDate:
			dst.ScheduledDate = src.ScheduledDate
		case FieldScheduledTime:
			dst.ScheduledTime = src.ScheduledTime
		case FieldFinishTime:
			dst.FinishTime = src.FinishTime
		case FieldDuration:
			dst.DurationMinutes = nil
			if src.DurationMinutes != nil {
				dst.DurationMinutes = ptr(*src.DurationMinutes)
			}
		case FieldStatus:
			dst.Status = src.Status
		case FieldAssignees:
			dst.Assignees = slices.Clone(src.Assignees)
			if dst.Assignees == nil {
				dst.Assignees = []string{}
			}
		case FieldTrackID:
			dst.TrackID = src.TrackID
		case FieldActivityID:
			dst.ActivityID = src.ActivityID
		case FieldDescription:
			dst.Description = src.Description
		}
	}
}

// validate checks what can be checked without the current event and
// canonicalizes time strings in place.
func (p *Patch) validate(id string) error {
	if p.IsEmpty() {
		return &ValidationError{EventID: id, Reason: "patch changes nothing"}
	}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return &ValidationError{EventID: id, Field: FieldTitle, Reason: "title can't be blank"}
		}
		p.Title = &t
	}
	if p.ScheduledDate != nil {
		if err := ValidateDate(*p.ScheduledDate); err != nil {
			return &ValidationError{EventID: id, Field: FieldScheduledDate, Reason: err.Error()}
		}
	}
	for _, tf := range []struct {
		field Field
		value **string
	}{
		{FieldScheduledTime, &p.ScheduledTime},
		{FieldFinishTime, &p.FinishTime},
	} {
		if *tf.value == nil || strings.TrimSpace(**tf.value) == "" {
			if *tf.value != nil {
				*tf.value = ptr("")
			}
			continue
		}
		canonical, err := CanonicalTime(**tf.value)
		if err != nil {
			return &ValidationError{EventID: id, Field: tf.field, Reason: err.Error()}
		}
		*tf.value = &canonical
	}
	if p.DurationMinutes != nil && (*p.DurationMinutes < 0 || *p.DurationMinutes >= minutesPerDay) {
		return &ValidationError{EventID: id, Field: FieldDuration, Reason: "duration must be between 0 and 1439 minutes"}
	}
	if p.Status != nil && !p.Status.Valid() {
		return &ValidationError{EventID: id, Field: FieldStatus, Reason: "unknown status " + string(*p.Status)}
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
