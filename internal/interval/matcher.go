// Package interval correlates interval Start events with their End or Cancel
// and computes durations.
package interval

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tinytelemetry/spool/internal/model"
)

// Mode is how End/Cancel events find their Start.
type Mode int32

const (
	// Undetermined means no End or Cancel has been issued yet.
	Undetermined Mode = iota
	// NonInterleaved correlates by metric; one open interval per metric.
	NonInterleaved
	// Interleaved correlates by the id returned from Begin.
	Interleaved
)

func (m Mode) String() string {
	switch m {
	case NonInterleaved:
		return "non-interleaved"
	case Interleaved:
		return "interleaved"
	default:
		return "undetermined"
	}
}

// Matcher owns the open-interval stores. Fix, Mode and Open may be called
// from any goroutine; Match must only be called from a single goroutine at a
// time.
type Matcher struct {
	mode     atomic.Int32
	checking bool
	unit     Unit
	freq     int64

	byMetric map[model.Metric]model.IntervalEvent
	byID     map[uuid.UUID]model.IntervalEvent

	// open mirrors the size of the active store after each Match.
	open atomic.Int64

	// Starts of an already open metric seen while the mode was undetermined.
	// They only become errors if the mode resolves to NonInterleaved.
	undeterminedDups []model.IntervalEvent
	resolved         bool
}

// NewMatcher creates a matcher. freq is the tick frequency of the clock that
// stamped the events.
func NewMatcher(checking bool, unit Unit, freq int64) *Matcher {
	return &Matcher{
		checking: checking,
		unit:     unit,
		freq:     freq,
		byMetric: make(map[model.Metric]model.IntervalEvent),
		byID:     make(map[uuid.UUID]model.IntervalEvent),
	}
}

// Mode returns the current correlation mode.
func (m *Matcher) Mode() Mode {
	return Mode(m.mode.Load())
}

// Fix locks the correlation mode on first use. Later calls succeed only if
// they ask for the mode already in force.
func (m *Matcher) Fix(want Mode) error {
	if m.mode.CompareAndSwap(int32(Undetermined), int32(want)) {
		return nil
	}
	if got := m.Mode(); got != want {
		return &model.Error{
			Code:    model.CodeModeViolation,
			Message: "cannot use " + want.String() + " end/cancel after " + got.String() + " mode was established",
		}
	}
	return nil
}

// Open returns the number of intervals awaiting an End or Cancel as of the
// last Match.
func (m *Matcher) Open() int {
	return int(m.open.Load())
}

// Match consumes a drained batch of interval events in order and returns a
// result for every End that closed an open Start.
func (m *Matcher) Match(events []model.IntervalEvent) ([]model.IntervalResult, error) {
	results, err := m.match(events)
	if m.Mode() == NonInterleaved {
		m.open.Store(int64(len(m.byMetric)))
	} else {
		m.open.Store(int64(len(m.byID)))
	}
	return results, err
}

func (m *Matcher) match(events []model.IntervalEvent) ([]model.IntervalResult, error) {
	mode := m.Mode()
	if err := m.resolve(mode); err != nil {
		return nil, err
	}

	var results []model.IntervalResult
	for _, e := range events {
		if e.Point == model.Start {
			if err := m.open(mode, e); err != nil {
				return nil, err
			}
			continue
		}

		start, ok, err := m.close(mode, e)
		if err != nil {
			return nil, err
		}
		if ok && e.Point == model.End {
			results = append(results, model.IntervalResult{
				Start:    start,
				Duration: Convert(e.Ticks-start.Ticks, m.freq, m.unit),
			})
		}
	}
	return results, nil
}

// resolve discards the store the established mode does not use.
func (m *Matcher) resolve(mode Mode) error {
	if m.resolved || mode == Undetermined {
		return nil
	}
	m.resolved = true

	dups := m.undeterminedDups
	m.undeterminedDups = nil

	if mode == Interleaved {
		m.byMetric = make(map[model.Metric]model.IntervalEvent)
		return nil
	}
	m.byID = make(map[uuid.UUID]model.IntervalEvent)
	if m.checking && len(dups) > 0 {
		return duplicateError(dups[0])
	}
	return nil
}

func (m *Matcher) open(mode Mode, e model.IntervalEvent) error {
	switch mode {
	case Interleaved:
		m.byID[e.ID] = e
	case NonInterleaved:
		if _, exists := m.byMetric[e.Metric]; exists && m.checking {
			return duplicateError(e)
		}
		m.byMetric[e.Metric] = e
	default:
		if _, exists := m.byMetric[e.Metric]; exists {
			m.undeterminedDups = append(m.undeterminedDups, e)
		}
		m.byMetric[e.Metric] = e
		m.byID[e.ID] = e
	}
	return nil
}

func (m *Matcher) close(mode Mode, e model.IntervalEvent) (model.IntervalEvent, bool, error) {
	if mode == Interleaved {
		start, ok := m.byID[e.ID]
		if !ok {
			return start, false, m.unmatched(e)
		}
		if start.Metric != e.Metric {
			return start, false, &model.Error{
				Code:    model.CodeMismatchedType,
				Message: "interval " + e.Point.String() + " metric differs from its start (" + start.Metric.Name + ")",
				Metric:  e.Metric.Name,
				ID:      e.ID,
			}
		}
		delete(m.byID, e.ID)
		return start, true, nil
	}

	start, ok := m.byMetric[e.Metric]
	if !ok {
		return start, false, m.unmatched(e)
	}
	delete(m.byMetric, e.Metric)
	return start, true, nil
}

// unmatched returns an error when checking is enabled; otherwise the event is
// dropped.
func (m *Matcher) unmatched(e model.IntervalEvent) error {
	if !m.checking {
		return nil
	}
	err := &model.Error{
		Code:    model.CodeUnmatchedInterval,
		Message: "interval " + e.Point.String() + " has no open start",
		Metric:  e.Metric.Name,
	}
	if m.Mode() == Interleaved {
		err.ID = e.ID
	}
	return err
}

func duplicateError(e model.IntervalEvent) error {
	return &model.Error{
		Code:    model.CodeDuplicateInterval,
		Message: "interval started while another start of the same metric is open",
		Metric:  e.Metric.Name,
	}
}
