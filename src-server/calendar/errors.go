package calendar

import (
	"errors"
	"fmt"
)

var ErrEventNotFound = errors.New("event not found in any loaded month")

// FetchError is a failed remote read. The month is left NotLoaded and a
// later refresh is expected to retry it.
type FetchError struct {
	Key MonthKey
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("can't load month %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MutationRejected is a remote write that failed after the optimistic
// apply. The touched fields have already been rolled back when it is
// delivered.
type MutationRejected struct {
	EventID string
	Fields  []Field
	Err     error
}

func (e *MutationRejected) Error() string {
	return fmt.Sprintf("update of event %s rejected: %v", e.EventID, e.Err)
}

func (e *MutationRejected) Unwrap() error { return e.Err }

// UserMessage is safe to show in an editor next to the reverted fields.
func (e *MutationRejected) UserMessage() string {
	return "Your change couldn't be saved and has been undone. Please try again."
}

// ValidationError is a patch or record that fails a structural
// precondition. It is raised before anything is written.
type ValidationError struct {
	EventID string
	Field   Field
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid change to event %s: %s", e.EventID, e.Reason)
	}
	return fmt.Sprintf("invalid %s for event %s: %s", e.Field, e.EventID, e.Reason)
}

// PlaceholderEventError is a mutation aimed at sample data that was never
// persisted. It indicates a caller bug and must not be retried.
type PlaceholderEventError struct {
	EventID string
}

func (e *PlaceholderEventError) Error() string {
	return fmt.Sprintf("event %s is placeholder data and can't be changed", e.EventID)
}
