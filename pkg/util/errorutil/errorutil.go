package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/staylink/verification-service/internal/domain"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic and workflow errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if de := fromWorkflowError(err); de != nil {
		return de
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return &DomainError{
			Code:       codeForStatus(fiberErr.Code),
			Message:    fiberErr.Message,
			HTTPStatus: fiberErr.Code,
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

func fromWorkflowError(err error) *DomainError {
	var transitionErr *domain.TransitionError
	transitionDetails := map[string]any{}
	if errors.As(err, &transitionErr) {
		transitionDetails["event"] = transitionErr.Event
		transitionDetails["current_status"] = transitionErr.Current
	}

	switch {
	case errors.Is(err, domain.ErrStaleWrite):
		return &DomainError{Code: "STALE_WRITE", Message: "this was already reviewed", HTTPStatus: http.StatusConflict, Details: transitionDetails, Err: err}
	case errors.Is(err, domain.ErrInvalidTransition):
		return &DomainError{Code: "INVALID_TRANSITION", Message: err.Error(), HTTPStatus: http.StatusConflict, Details: transitionDetails, Err: err}
	case errors.Is(err, domain.ErrMissingReason):
		return &DomainError{Code: "MISSING_REASON", Message: "a reason is required", HTTPStatus: http.StatusUnprocessableEntity, Err: err}
	case errors.Is(err, domain.ErrChannelUnavailable):
		return &DomainError{Code: "CHANNEL_UNAVAILABLE", Message: "notification channel unavailable", HTTPStatus: http.StatusServiceUnavailable, Err: err}
	case errors.Is(err, domain.ErrUploadRejected):
		return &DomainError{Code: "UPLOAD_REJECTED", Message: err.Error(), HTTPStatus: http.StatusUnprocessableEntity, Err: err}
	case errors.Is(err, domain.ErrSubmissionLocked):
		return &DomainError{Code: "SUBMISSION_LOCKED", Message: err.Error(), HTTPStatus: http.StatusConflict, Err: err}
	case errors.Is(err, domain.ErrOnboardingIncomplete):
		return &DomainError{Code: "ONBOARDING_INCOMPLETE", Message: "onboarding must be completed before listing", HTTPStatus: http.StatusConflict, Err: err}
	case errors.Is(err, domain.ErrIncompleteArtifacts), errors.Is(err, domain.ErrUnknownValue):
		return &DomainError{Code: "VALIDATION_FAILED", Message: err.Error(), HTTPStatus: http.StatusBadRequest, Err: err}
	case errors.Is(err, domain.ErrSubjectExists):
		return &DomainError{Code: "CONFLICT", Message: "verification subject already exists", HTTPStatus: http.StatusConflict, Err: err}
	case errors.Is(err, domain.ErrSubjectNotFound):
		return &DomainError{Code: "NOT_FOUND", Message: "verification subject not found", HTTPStatus: http.StatusNotFound, Details: map[string]any{}, Err: err}
	case errors.Is(err, domain.ErrAccountNotFound):
		return &DomainError{Code: "NOT_FOUND", Message: "account not found", HTTPStatus: http.StatusNotFound, Details: map[string]any{}, Err: err}
	case errors.Is(err, domain.ErrEmailTaken):
		return &DomainError{Code: "CONFLICT", Message: "email already registered", HTTPStatus: http.StatusConflict, Err: err}
	case errors.Is(err, domain.ErrForbidden):
		return &DomainError{Code: "FORBIDDEN", Message: "operation not permitted", HTTPStatus: http.StatusForbidden, Err: err}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return &DomainError{Code: "UNAUTHORIZED", Message: "invalid credentials", HTTPStatus: http.StatusUnauthorized, Err: err}
	}
	return nil
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "VALIDATION_FAILED"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	default:
		if status >= 500 {
			return "INTERNAL_ERROR"
		}
		return "REQUEST_FAILED"
	}
}
