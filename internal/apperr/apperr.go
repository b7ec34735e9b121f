// Package apperr defines the error kinds the service distinguishes at its edges.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of error.
type Kind string

const (
	// KindInput indicates a malformed request or document.
	KindInput Kind = "INPUT_ERROR"

	// KindConfig indicates bad tenant or service configuration.
	KindConfig Kind = "CONFIG_ERROR"

	// KindNotFound indicates a resource not found error.
	KindNotFound Kind = "NOT_FOUND"

	// KindUpstream indicates a failure in Airtable, a webhook or another remote system.
	KindUpstream Kind = "UPSTREAM_ERROR"

	// KindInternal indicates an internal error.
	KindInternal Kind = "INTERNAL_ERROR"
)

// Error is a domain error with a kind and optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Input creates an input error.
func Input(format string, args ...any) *Error {
	return &Error{Kind: KindInput, Message: fmt.Sprintf(format, args...)}
}

// Config wraps a configuration problem.
func Config(message string, cause error) *Error {
	return &Error{Kind: KindConfig, Message: message, Cause: cause}
}

// NotFound creates a not found error.
func NotFound(resource, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found: %s", resource, id)}
}

// Upstream wraps a failure reported by a remote system.
func Upstream(message string, cause error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Cause: cause}
}

// Internal creates an internal error.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
