package domain

import "fmt"

// GroupEvent is an input to the document group state machine.
type GroupEvent string

const (
	EventSubmit              GroupEvent = "submit"
	EventApprove             GroupEvent = "approve"
	EventReject              GroupEvent = "reject"
	EventFlagForManualReview GroupEvent = "flag_for_manual_review"
)

// TransitionError reports an event that is illegal from the current status.
// Callers treat it as a stale view and resynchronize.
type TransitionError struct {
	Event   GroupEvent
	Current GroupStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s from %s", e.Event, e.Current)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

var allowedTransitions = map[GroupEvent]map[GroupStatus]GroupStatus{
	EventSubmit: {
		GroupStatusNotSubmitted: GroupStatusPending,
		GroupStatusRejected:     GroupStatusPending,
	},
	EventApprove: {
		GroupStatusPending:      GroupStatusApproved,
		GroupStatusManualReview: GroupStatusApproved,
	},
	EventReject: {
		GroupStatusPending:      GroupStatusRejected,
		GroupStatusManualReview: GroupStatusRejected,
	},
	EventFlagForManualReview: {
		GroupStatusPending: GroupStatusManualReview,
	},
}

// Transition returns the status reached by applying event to current.
func Transition(current GroupStatus, event GroupEvent) (GroupStatus, error) {
	next, ok := allowedTransitions[event][current]
	if !ok {
		return current, &TransitionError{Event: event, Current: current}
	}
	return next, nil
}
