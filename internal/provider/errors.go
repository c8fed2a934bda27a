package provider

import (
	"context"
	"errors"
	"fmt"
)

// Class buckets upstream errors into the three handling paths the
// orchestrator knows about. Connectors classify; the orchestrator never
// special-cases provider identity.
type Class int

const (
	// ClassRetryable: upstream 5xx, network timeout. Retried with backoff;
	// becomes fatal once the retry budget is exhausted.
	ClassRetryable Class = iota
	// ClassIgnorable: provider-documented "not applicable" conditions
	// ("no investment accounts", "product not supported"). The category
	// degrades to an empty result.
	ClassIgnorable
	// ClassFatal: auth revoked, item needs re-linking, unknown shapes.
	// Aborts the sync and marks the connection ERROR.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassIgnorable:
		return "ignorable"
	default:
		return "fatal"
	}
}

// Error is an upstream error with its classification attached.
type Error struct {
	Class  Class
	Code   string // provider error code, when known
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Reason, e.Class, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Reason, e.Class)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable wraps err as transient.
func Retryable(reason string, err error) *Error {
	return &Error{Class: ClassRetryable, Reason: reason, Err: err}
}

// Ignorable wraps err as a per-category "not applicable" condition.
func Ignorable(reason string, err error) *Error {
	return &Error{Class: ClassIgnorable, Reason: reason, Err: err}
}

// Fatal wraps err as sync-aborting.
func Fatal(reason string, err error) *Error {
	return &Error{Class: ClassFatal, Reason: reason, Err: err}
}

// Classify returns the class of err. Unwrapped (unclassified) errors are
// fatal: an unknown shape must never be silently retried or ignored.
// Context deadline errors count as retryable so the per-call timeout feeds
// the retry budget.
func Classify(err error) Class {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassRetryable
	}
	return ClassFatal
}

// Reason extracts the human-readable reason from a classified error.
func Reason(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return err.Error()
}
