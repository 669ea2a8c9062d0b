// Package apperr provides the closed error taxonomy shared by every
// scheduling component. Domain code returns these typed errors and the staff
// and voice gateways map them uniformly onto HTTP statuses and spoken
// messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure within the closed taxonomy.
type Code string

const (
	// Input errors are reported to the caller and never retried.
	CodeUnparseable     Code = "UNPARSEABLE"
	CodeAmbiguous       Code = "AMBIGUOUS"
	CodeUnknownTimezone Code = "UNKNOWN_TIMEZONE"
	CodePastInstant     Code = "PAST_INSTANT"
	CodeInvalidDuration Code = "INVALID_DURATION"
	CodeUnknownFunction Code = "UNKNOWN_FUNCTION"
	CodeNotFound        Code = "NOT_FOUND"
	CodeBadRequest      Code = "BAD_REQUEST"

	// Business errors are local to a single request and never poison state.
	CodePracticeClosed    Code = "PRACTICE_CLOSED"
	CodeVetUnavailable    Code = "VET_UNAVAILABLE"
	CodeSlotConflict      Code = "SLOT_CONFLICT"
	CodeInvalidTransition Code = "INVALID_TRANSITION"

	// Transient errors are retried internally before surfacing as TRY_AGAIN.
	CodeSerializationFailure Code = "SERIALIZATION_FAILURE"
	CodeDeadlock             Code = "DEADLOCK"
	CodeTryAgain             Code = "TRY_AGAIN"

	// Infrastructure errors abort the transaction and propagate.
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodeDeadlineExceeded Code = "DEADLINE_EXCEEDED"
)

// Class groups codes by their propagation policy.
type Class int

const (
	ClassInput Class = iota
	ClassBusiness
	ClassTransient
	ClassInfrastructure
)

// Class returns the propagation class for the code.
func (c Code) Class() Class {
	switch c {
	case CodePracticeClosed, CodeVetUnavailable, CodeSlotConflict, CodeInvalidTransition:
		return ClassBusiness
	case CodeSerializationFailure, CodeDeadlock, CodeTryAgain:
		return ClassTransient
	case CodeStoreUnavailable, CodeDeadlineExceeded:
		return ClassInfrastructure
	default:
		return ClassInput
	}
}

// Error is a domain error carrying a taxonomy code.
type Error struct {
	Code    Code
	Message string
	Err     error // underlying cause (optional)
	Details any   // extra payload for responses, e.g. candidate slots (optional)
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the code onto the staff surface's status codes.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeSlotConflict, CodeInvalidTransition:
		return http.StatusConflict
	case CodePracticeClosed, CodeVetUnavailable, CodeInvalidDuration:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTryAgain, CodeStoreUnavailable, CodeSerializationFailure, CodeDeadlock:
		return http.StatusServiceUnavailable
	case CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}

// New creates a new domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithDetails returns the error with additional response details attached.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// CodeOf extracts the taxonomy code from err, if it carries one.
func CodeOf(err error) (Code, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code, true
	}
	return "", false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}
