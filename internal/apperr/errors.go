// Package apperr defines the error kinds shared by the friendship and feed
// components. The HTTP layer maps kinds to status codes.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	Unauthenticated       Kind = "UNAUTHENTICATED"
	InvalidArgument       Kind = "INVALID_ARGUMENT"
	NotFound              Kind = "NOT_FOUND"
	InvalidState          Kind = "INVALID_STATE"
	Conflict              Kind = "CONFLICT"
	DependencyUnavailable Kind = "DEPENDENCY_UNAVAILABLE"
)

// Error implements error so that errors.Is(err, apperr.NotFound) matches any
// *Error of that kind.
func (k Kind) Error() string { return string(k) }

type Error struct {
	Kind    Kind
	Message string
	Details any
	cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Is(target error) bool {
	kind, ok := target.(Kind)
	return ok && e.Kind == kind
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WithDetails(kind Kind, message string, details any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// Wrap attaches a kind to an underlying failure, keeping it reachable through
// errors.Unwrap.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind, true
	}
	return "", false
}
