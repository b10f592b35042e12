package domain

import "errors"

// Workflow failures. Infrastructure wraps these with %w; the HTTP layer maps them to codes.
var (
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrMissingReason        = errors.New("reason is required")
	ErrStaleWrite           = errors.New("subject was modified by another action")
	ErrChannelUnavailable   = errors.New("notification channel unavailable")
	ErrUploadRejected       = errors.New("upload rejected")
	ErrSubmissionLocked     = errors.New("document group is read-only in its current status")
	ErrOnboardingIncomplete = errors.New("onboarding not completed")
	ErrIncompleteArtifacts  = errors.New("required artifact slots are empty")
	ErrUnknownValue         = errors.New("unrecognized value")
	ErrVersionConflict      = errors.New("version conflict")
	ErrSubjectNotFound      = errors.New("verification subject not found")
	ErrSubjectExists        = errors.New("verification subject already exists")
	ErrAccountNotFound      = errors.New("account not found")
	ErrEmailTaken           = errors.New("email already registered")
	ErrForbidden            = errors.New("operation not permitted")
	ErrInvalidCredentials   = errors.New("invalid credentials")
)

// StaleWriteError is returned when another action committed first and the
// precondition no longer holds against the fresh state.
type StaleWriteError struct {
	Transition *TransitionError
}

func (e *StaleWriteError) Error() string {
	if e.Transition == nil {
		return ErrStaleWrite.Error()
	}
	return ErrStaleWrite.Error() + ": " + e.Transition.Error()
}

// Is matches ErrStaleWrite; ErrInvalidTransition is reached through Unwrap.
func (e *StaleWriteError) Is(target error) bool {
	return target == ErrStaleWrite
}

func (e *StaleWriteError) Unwrap() error {
	if e.Transition == nil {
		return nil
	}
	return e.Transition
}
