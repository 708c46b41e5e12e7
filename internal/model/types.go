package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Metric identifies a metric. Two metrics with the same name and description
// are the same metric type; non-interleaved interval correlation keys on it.
type Metric struct {
	Name        string
	Description string
}

// Kind is one of the four buffered metric kinds. The numeric order is the
// order in which buffers are drained.
type Kind int

const (
	KindCount Kind = iota
	KindAmount
	KindStatus
	KindInterval
)

// NumKinds is the number of distinct Kind values.
const NumKinds = 4

// Kinds lists every kind in drain order.
var Kinds = [NumKinds]Kind{KindCount, KindAmount, KindStatus, KindInterval}

func (k Kind) String() string {
	switch k {
	case KindCount:
		return "count"
	case KindAmount:
		return "amount"
	case KindStatus:
		return "status"
	case KindInterval:
		return "interval"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if strings.EqualFold(s, k.String()) {
			return k, true
		}
	}
	return 0, false
}

// CountEvent records a single occurrence of a metric.
type CountEvent struct {
	Metric Metric
	Time   time.Time
}

// AmountEvent records an occurrence carrying a quantity (bytes, items, ...).
type AmountEvent struct {
	Metric Metric
	Amount int64
	Time   time.Time
}

// StatusEvent records the point-in-time value of a metric (queue depth, ...).
type StatusEvent struct {
	Metric Metric
	Value  int64
	Time   time.Time
}

// TimePoint is the position of an IntervalEvent within an interval.
type TimePoint int

const (
	Start TimePoint = iota
	End
	Cancel
)

func (p TimePoint) String() string {
	switch p {
	case Start:
		return "start"
	case End:
		return "end"
	case Cancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// IntervalEvent marks the start, end or cancellation of an interval metric.
// Ticks come from the engine's monotonic clock and are only meaningful
// relative to other events from the same clock.
type IntervalEvent struct {
	ID     uuid.UUID
	Metric Metric
	Point  TimePoint
	Ticks  int64
	Time   time.Time
}

// IntervalResult pairs the Start event of a completed interval with its
// duration in the engine's configured base unit.
type IntervalResult struct {
	Start    IntervalEvent
	Duration int64
}

// Batch is everything drained by one flush. Results is filled in once the
// interval events have been matched.
type Batch struct {
	Counts    []CountEvent
	Amounts   []AmountEvent
	Statuses  []StatusEvent
	Intervals []IntervalEvent
	Results   []IntervalResult
}

// Len returns the number of drained events across all kinds.
func (b *Batch) Len() int {
	return len(b.Counts) + len(b.Amounts) + len(b.Statuses) + len(b.Intervals)
}
