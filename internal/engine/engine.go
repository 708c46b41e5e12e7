// Package engine buffers metric occurrences reported by application
// goroutines and hands them to a consumer in batches.
//
// Producers call Record*/BeginInterval/EndInterval/CancelInterval; these
// append to per-kind buffers and never wait on the consumer. A flush
// strategy decides when the buffers are drained. Failures on the flush
// worker are returned from the next call made into the engine.
package engine

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tinytelemetry/spool/internal/clock"
	"github.com/tinytelemetry/spool/internal/flush"
	"github.com/tinytelemetry/spool/internal/idgen"
	"github.com/tinytelemetry/spool/internal/interval"
	"github.com/tinytelemetry/spool/internal/model"
	"github.com/tinytelemetry/spool/internal/queue"
)

// Engine is safe for concurrent use by any number of producers.
type Engine struct {
	cfg        Config
	consumer   model.Consumer
	clock      model.Clock
	ids        model.IDGenerator
	metrics    *Metrics
	deadLetter DeadLetter

	buffers  *queue.Set
	matcher  *interval.Matcher
	strategy flush.Strategy

	stopped atomic.Bool
}

// New creates an engine delivering to consumer. Invalid configuration is
// reported as a CONFIGURATION error.
func New(consumer model.Consumer, cfg Config, opts ...Option) (*Engine, error) {
	if consumer == nil {
		return nil, model.NewConfigurationError("consumer cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		consumer: consumer,
		clock:    clock.NewSystem(),
		ids:      idgen.UUID{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil || e.clock.Frequency() <= 0 {
		return nil, model.NewConfigurationError("clock must have a positive frequency")
	}
	if e.ids == nil {
		return nil, model.NewConfigurationError("id generator cannot be nil")
	}

	strategy, err := flush.New(cfg.Strategy, e.dispatch)
	if err != nil {
		return nil, err
	}
	e.strategy = strategy
	e.buffers = queue.New(strategy)
	e.matcher = interval.NewMatcher(cfg.Checking, cfg.Unit, e.clock.Frequency())
	return e, nil
}

// Start launches the flush strategy.
func (e *Engine) Start() error {
	return e.strategy.Start()
}

// Stop terminates the flush strategy cooperatively and waits for it. With
// drainRemaining set, anything still buffered is flushed once first. A fault
// not yet returned to a caller is returned here.
func (e *Engine) Stop(drainRemaining bool) error {
	e.stopped.Store(true)
	return e.strategy.Stop(drainRemaining)
}

// Flush drains and dispatches immediately. Only the manual strategy allows
// it. A failed flush is returned as a worker fault and leaves the engine
// faulted: later flushes deliver nothing.
func (e *Engine) Flush() error {
	m, ok := e.strategy.(*flush.Manual)
	if !ok {
		return ErrNotManual
	}
	if err := e.admit(); err != nil {
		return err
	}
	return m.Flush()
}

// admit returns the pending worker fault, if any, or ErrStopped.
func (e *Engine) admit() error {
	if err := e.strategy.Err(); err != nil {
		return err
	}
	if e.stopped.Load() {
		return ErrStopped
	}
	return nil
}

// RecordCount records one occurrence of m.
func (e *Engine) RecordCount(m model.Metric) error {
	if err := e.admit(); err != nil {
		return err
	}
	e.buffers.PushCount(model.CountEvent{Metric: m, Time: e.clock.UtcNow()})
	return nil
}

// RecordAmount records an occurrence of m carrying amount.
func (e *Engine) RecordAmount(m model.Metric, amount int64) error {
	if err := e.admit(); err != nil {
		return err
	}
	e.buffers.PushAmount(model.AmountEvent{Metric: m, Amount: amount, Time: e.clock.UtcNow()})
	return nil
}

// RecordStatus records the current value of m.
func (e *Engine) RecordStatus(m model.Metric, value int64) error {
	if err := e.admit(); err != nil {
		return err
	}
	e.buffers.PushStatus(model.StatusEvent{Metric: m, Value: value, Time: e.clock.UtcNow()})
	return nil
}

// Record dispatches on kind. value is ignored for counts.
func (e *Engine) Record(kind model.Kind, m model.Metric, value int64) error {
	switch kind {
	case model.KindCount:
		return e.RecordCount(m)
	case model.KindAmount:
		return e.RecordAmount(m, value)
	case model.KindStatus:
		return e.RecordStatus(m, value)
	case model.KindInterval:
		return ErrIntervalKind
	default:
		return model.NewConfigurationError("unknown metric kind %d", int(kind))
	}
}

// BeginInterval starts an interval of m and returns its correlation id.
// Callers using the id-less End/Cancel may ignore the id.
func (e *Engine) BeginInterval(m model.Metric) (uuid.UUID, error) {
	if err := e.admit(); err != nil {
		return uuid.Nil, err
	}
	id := e.ids.NewID()
	e.pushInterval(id, m, model.Start)
	return id, nil
}

// EndInterval ends the open interval of m. The first End/Cancel call decides
// whether the engine correlates by metric or by id for its whole life.
func (e *Engine) EndInterval(m model.Metric) error {
	return e.closeInterval(uuid.Nil, m, model.End, interval.NonInterleaved)
}

// EndIntervalID ends the interval started with id.
func (e *Engine) EndIntervalID(id uuid.UUID, m model.Metric) error {
	return e.closeInterval(id, m, model.End, interval.Interleaved)
}

// CancelInterval abandons the open interval of m without reporting it.
func (e *Engine) CancelInterval(m model.Metric) error {
	return e.closeInterval(uuid.Nil, m, model.Cancel, interval.NonInterleaved)
}

// CancelIntervalID abandons the interval started with id.
func (e *Engine) CancelIntervalID(id uuid.UUID, m model.Metric) error {
	return e.closeInterval(id, m, model.Cancel, interval.Interleaved)
}

func (e *Engine) closeInterval(id uuid.UUID, m model.Metric, point model.TimePoint, mode interval.Mode) error {
	if err := e.admit(); err != nil {
		return err
	}
	if err := e.matcher.Fix(mode); err != nil {
		if me, ok := err.(*model.Error); ok {
			me.Metric = m.Name
			me.ID = id
		}
		return err
	}
	e.pushInterval(id, m, point)
	return nil
}

func (e *Engine) pushInterval(id uuid.UUID, m model.Metric, point model.TimePoint) {
	e.buffers.PushInterval(model.IntervalEvent{
		ID:     id,
		Metric: m,
		Point:  point,
		Ticks:  e.clock.ElapsedTicks(),
		Time:   e.clock.UtcNow(),
	})
}

// Stats is a point-in-time view of the engine for health reporting.
type Stats struct {
	Strategy string
	Mode     string
	Flushes  uint64
	Faulted  bool
	Stopped  bool
	Buffered map[string]int

	// OpenIntervals counts Starts still awaiting an End or Cancel as of the
	// last flush.
	OpenIntervals int
}

// Stats returns current engine state.
func (e *Engine) Stats() Stats {
	buffered := make(map[string]int, model.NumKinds)
	for _, k := range model.Kinds {
		buffered[k.String()] = e.buffers.Len(k)
	}
	return Stats{
		Strategy: e.cfg.Strategy.String(),
		Mode:     e.matcher.Mode().String(),
		Flushes:  e.strategy.Flushes(),
		Faulted:  e.strategy.Faulted(),
		Stopped:  e.stopped.Load(),
		Buffered: buffered,

		OpenIntervals: e.matcher.Open(),
	}
}
