package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies engine errors so callers can branch on the failure class
// without parsing messages.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindValidation        Kind = "VALIDATION"
	KindCycle             Kind = "CYCLE"
	KindConflict          Kind = "CONFLICT"
	KindInvalidState      Kind = "INVALID_STATE"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
)

// Error is the only error type returned across the engine's public API.
type Error struct {
	Kind    Kind
	Message string

	// StepIDs carries the offending step/stage ids for cycle and
	// orphaned-reference errors.
	StepIDs []string

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.StepIDs) > 0 {
		return fmt.Sprintf("%s: %s [%s]", e.Kind, e.Message, strings.Join(e.StepIDs, " -> "))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying cause to the error.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// NewNotFound returns a NOT_FOUND error.
func NewNotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewValidation returns a VALIDATION error.
func NewValidation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewCycle returns a CYCLE error naming the step ids on the detected cycle.
func NewCycle(stepIDs []string) *Error {
	return &Error{
		Kind:    KindCycle,
		Message: "dependency graph contains a cycle",
		StepIDs: stepIDs,
	}
}

// NewConflict returns a CONFLICT error.
func NewConflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidState returns an INVALID_STATE error.
func NewInvalidState(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidTransition returns an INVALID_TRANSITION error.
func NewInvalidTransition(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of an engine error, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err is a NOT_FOUND engine error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsValidation reports whether err is a VALIDATION engine error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsCycle reports whether err is a CYCLE engine error.
func IsCycle(err error) bool { return KindOf(err) == KindCycle }

// IsConflict reports whether err is a CONFLICT engine error.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsInvalidState reports whether err is an INVALID_STATE engine error.
func IsInvalidState(err error) bool { return KindOf(err) == KindInvalidState }

// IsInvalidTransition reports whether err is an INVALID_TRANSITION engine error.
func IsInvalidTransition(err error) bool { return KindOf(err) == KindInvalidTransition }
