// Package queue holds the per-kind event buffers that producers append to and
// the flush worker swap-drains.
package queue

import (
	"sync"

	"github.com/tinytelemetry/spool/internal/model"
)

const defaultCapacity = 64

// Notifier is told about every append and every drain. Both calls are made
// while the kind's lock is held, so a counter kept by the notifier is exact
// with respect to the buffer contents.
type Notifier interface {
	NotifyBuffered(kind model.Kind)
	NotifyCleared(kind model.Kind)
}

// fifo is a mutex-guarded append-only slice that is drained by swapping in a
// fresh slice.
type fifo[T any] struct {
	mu      sync.Mutex
	kind    model.Kind
	pending []T
}

func (f *fifo[T]) push(n Notifier, v T) {
	f.mu.Lock()
	f.pending = append(f.pending, v)
	if n != nil {
		n.NotifyBuffered(f.kind)
	}
	f.mu.Unlock()
}

func (f *fifo[T]) drain(n Notifier) []T {
	f.mu.Lock()
	batch := f.pending
	f.pending = make([]T, 0, max(defaultCapacity, len(batch)))
	if n != nil {
		n.NotifyCleared(f.kind)
	}
	f.mu.Unlock()
	return batch
}

func (f *fifo[T]) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Set is the four independent FIFO buffers of one engine. Appends to one kind
// never contend with appends to another.
type Set struct {
	notifier  Notifier
	counts    fifo[model.CountEvent]
	amounts   fifo[model.AmountEvent]
	statuses  fifo[model.StatusEvent]
	intervals fifo[model.IntervalEvent]
}

// New creates an empty Set reporting to n. n may be nil.
func New(n Notifier) *Set {
	s := &Set{notifier: n}
	s.counts.kind = model.KindCount
	s.amounts.kind = model.KindAmount
	s.statuses.kind = model.KindStatus
	s.intervals.kind = model.KindInterval
	return s
}

// SetNotifier replaces the notifier. It must be called before any producer
// uses the Set.
func (s *Set) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *Set) PushCount(e model.CountEvent)       { s.counts.push(s.notifier, e) }
func (s *Set) PushAmount(e model.AmountEvent)     { s.amounts.push(s.notifier, e) }
func (s *Set) PushStatus(e model.StatusEvent)     { s.statuses.push(s.notifier, e) }
func (s *Set) PushInterval(e model.IntervalEvent) { s.intervals.push(s.notifier, e) }

// DrainCounts atomically takes everything buffered for counts.
func (s *Set) DrainCounts() []model.CountEvent { return s.counts.drain(s.notifier) }

// DrainAmounts atomically takes everything buffered for amounts.
func (s *Set) DrainAmounts() []model.AmountEvent { return s.amounts.drain(s.notifier) }

// DrainStatuses atomically takes everything buffered for statuses.
func (s *Set) DrainStatuses() []model.StatusEvent { return s.statuses.drain(s.notifier) }

// DrainIntervals atomically takes everything buffered for interval events.
func (s *Set) DrainIntervals() []model.IntervalEvent { return s.intervals.drain(s.notifier) }

// Len returns the number of events currently buffered for kind.
func (s *Set) Len(kind model.Kind) int {
	switch kind {
	case model.KindCount:
		return s.counts.len()
	case model.KindAmount:
		return s.amounts.len()
	case model.KindStatus:
		return s.statuses.len()
	case model.KindInterval:
		return s.intervals.len()
	default:
		return 0
	}
}
