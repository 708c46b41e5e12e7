package engine

import (
	"errors"

	"github.com/tinytelemetry/spool/internal/model"
)

// Type aliases re-export the model error types so callers only need to
// import engine.
type Error = model.Error
type ErrorCode = model.ErrorCode

const (
	CodeConfiguration     = model.CodeConfiguration
	CodeModeViolation     = model.CodeModeViolation
	CodeUnmatchedInterval = model.CodeUnmatchedInterval
	CodeDuplicateInterval = model.CodeDuplicateInterval
	CodeMismatchedType    = model.CodeMismatchedType
	CodeWorkerFault       = model.CodeWorkerFault
)

var (
	IsConfiguration  = model.IsConfiguration
	IsModeViolation  = model.IsModeViolation
	IsUnmatched      = model.IsUnmatched
	IsDuplicate      = model.IsDuplicate
	IsMismatchedType = model.IsMismatchedType
	IsWorkerFault    = model.IsWorkerFault
)

var (
	// ErrStopped is returned by buffering calls made after Stop.
	ErrStopped = errors.New("engine: stopped")

	// ErrNotManual is returned by Flush when the strategy flushes on its own.
	ErrNotManual = errors.New("engine: flush is only available with the manual strategy")

	// ErrIntervalKind is returned by Record for interval metrics, which go
	// through BeginInterval/EndInterval instead.
	ErrIntervalKind = errors.New("engine: interval metrics are recorded with BeginInterval and EndInterval")
)
