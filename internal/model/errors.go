package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// CodeConfiguration indicates invalid construction arguments.
	CodeConfiguration ErrorCode = "CONFIGURATION"

	// CodeModeViolation indicates id-less and id'd End/Cancel calls were mixed.
	CodeModeViolation ErrorCode = "MODE_VIOLATION"

	// CodeUnmatchedInterval indicates an End/Cancel with no open Start.
	CodeUnmatchedInterval ErrorCode = "UNMATCHED_INTERVAL"

	// CodeDuplicateInterval indicates a second Start of a metric while one is
	// open in non-interleaved mode.
	CodeDuplicateInterval ErrorCode = "DUPLICATE_INTERVAL"

	// CodeMismatchedType indicates a correlation id was ended or cancelled
	// with a different metric than it was begun with.
	CodeMismatchedType ErrorCode = "MISMATCHED_TYPE"

	// CodeWorkerFault indicates the flush worker failed. The cause is
	// available through Unwrap.
	CodeWorkerFault ErrorCode = "WORKER_FAULT"
)

// Error is the single error type raised by the engine and its strategies.
type Error struct {
	Code    ErrorCode
	Message string

	// Metric is the metric involved, if any.
	Metric string

	// ID is the correlation id involved, if any.
	ID uuid.UUID

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	switch {
	case e.Metric != "" && e.ID != uuid.Nil:
		return fmt.Sprintf("%s: %s (metric=%s, id=%s)", e.Code, msg, e.Metric, e.ID)
	case e.Metric != "":
		return fmt.Sprintf("%s: %s (metric=%s)", e.Code, msg, e.Metric)
	default:
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// IsConfiguration reports whether err (or any cause) is a configuration error.
func IsConfiguration(err error) bool { return hasCode(err, CodeConfiguration) }

// IsModeViolation reports whether err (or any cause) is a mode violation.
func IsModeViolation(err error) bool { return hasCode(err, CodeModeViolation) }

// IsUnmatched reports whether err (or any cause) is an unmatched interval.
func IsUnmatched(err error) bool { return hasCode(err, CodeUnmatchedInterval) }

// IsDuplicate reports whether err (or any cause) is a duplicate open interval.
func IsDuplicate(err error) bool { return hasCode(err, CodeDuplicateInterval) }

// IsMismatchedType reports whether err (or any cause) is a metric type mismatch.
func IsMismatchedType(err error) bool { return hasCode(err, CodeMismatchedType) }

// IsWorkerFault reports whether err is a deferred worker fault.
func IsWorkerFault(err error) bool { return hasCode(err, CodeWorkerFault) }

// NewConfigurationError creates a configuration error.
func NewConfigurationError(format string, args ...any) *Error {
	return &Error{Code: CodeConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewWorkerFault wraps a failure captured on a flush worker.
func NewWorkerFault(cause error) *Error {
	return &Error{Code: CodeWorkerFault, Message: "flush worker faulted", Err: cause}
}
