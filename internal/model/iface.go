package model

import (
	"time"

	"github.com/google/uuid"
)

// Consumer receives flushed batches. Methods are called from the single
// flush worker of an engine, never concurrently with each other.
type Consumer interface {
	ProcessCountEvents(events []CountEvent) error
	ProcessAmountEvents(events []AmountEvent) error
	ProcessStatusEvents(events []StatusEvent) error
	ProcessIntervalEvents(results []IntervalResult) error
}

// Clock is a monotonic tick source anchored to wall-clock time.
type Clock interface {
	ElapsedTicks() int64
	Frequency() int64
	UtcNow() time.Time
}

// IDGenerator produces interval correlation ids.
type IDGenerator interface {
	NewID() uuid.UUID
}

// TotalsReader provides the read-side queries served by the sidecar.
type TotalsReader interface {
	Totals(opts QueryOpts) ([]MetricTotal, error)
	TableRowCounts() (map[string]int64, error)
}
