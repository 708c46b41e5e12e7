package flush

import "errors"

// Lifecycle errors for strategies.
var (
	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("flush strategy already started")

	// ErrNotStarted indicates Stop was called before Start.
	ErrNotStarted = errors.New("flush strategy not started")

	// ErrStopped indicates the strategy was used after Stop.
	ErrStopped = errors.New("flush strategy stopped")
)
