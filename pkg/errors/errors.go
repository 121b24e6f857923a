// Package errors provides structured error types for the orchestrator.
//
// This package defines the error codes spec'd for the hydration engine and
// request orchestrator so callers can distinguish failure classes without
// string matching.
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - VALIDATION_*: malformed input (request XML, missing project)
//   - HYDRATION_*: any hydration strategy failure
//   - RESOURCE_FETCH_*: href target could not be retrieved
//   - TIMEOUT_*: a group's completion deadline elapsed
//   - TASK_*: a dispatched task failed after exhausting retries
//   - INVOKER_*: the external task invoker itself faulted at dispatch time
//
// # Usage
//
//	err := errors.New(errors.ErrCodeHydration, "href target missing: %s", uri)
//	if errors.Is(err, errors.ErrCodeHydration) {
//	    // handle hydration failure
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeResourceFetch, origErr, "fetch %s", uri)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for the orchestrator's failure classes (spec.md §7).
const (
	// ErrCodeValidation covers malformed request XML or a missing project root.
	ErrCodeValidation Code = "VALIDATION_ERROR"

	// ErrCodeHydration covers any hydration strategy failure: unresolved URI,
	// ambiguous remote match, bad use syntax, unsupported function, empty
	// match set, multi-match select, missing context, parent-less node.
	ErrCodeHydration Code = "HYDRATION_ERROR"

	// ErrCodeResourceFetch covers a fetch failure in the resource fetcher,
	// lifted into ErrCodeHydration once it crosses the href strategy boundary.
	ErrCodeResourceFetch Code = "RESOURCE_FETCH_ERROR"

	// ErrCodeTimeout covers a group completion deadline exceeded.
	ErrCodeTimeout Code = "TIMEOUT_ERROR"

	// ErrCodeTaskFailure covers a task failed event after MAX_TASK_RETRIES.
	ErrCodeTaskFailure Code = "TASK_FAILURE"

	// ErrCodeInvoker covers a dispatch-time fault in the external task invoker.
	ErrCodeInvoker Code = "INVOKER_ERROR"

	// ErrCodeInternal covers unexpected internal errors with no better code.
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error. If cause is already
// an *Error and code matches its code, the message is still re-stated so
// each layer of wrapping adds context (e.g. the href strategy wrapping a
// ResourceFetchError into a HydrationError).
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
