package engine

import (
	"github.com/tinytelemetry/spool/internal/flush"
	"github.com/tinytelemetry/spool/internal/interval"
	"github.com/tinytelemetry/spool/internal/model"
)

// Config holds the recognised engine options.
type Config struct {
	// Unit is the base unit interval durations are reported in.
	Unit interval.Unit

	// Checking turns malformed interval sequences into worker faults instead
	// of silently dropping them.
	Checking bool

	// Strategy selects when buffered events are flushed.
	Strategy flush.Spec
}

// DefaultConfig is millisecond durations, checking on and a hybrid strategy.
func DefaultConfig() Config {
	return Config{
		Unit:     interval.Millisecond,
		Checking: true,
		Strategy: flush.HybridSpec(model.DefaultFlushLimit, model.DefaultFlushInterval),
	}
}

// Validate checks the parts of the config not validated by the strategy itself.
func (c Config) Validate() error {
	switch c.Unit {
	case interval.Millisecond, interval.Nanosecond:
	default:
		return model.NewConfigurationError("unknown interval unit %d", int(c.Unit))
	}
	return nil
}

// DeadLetter receives batches that could not be delivered.
type DeadLetter interface {
	Append(reason error, batch *model.Batch) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the system clock.
func WithClock(c model.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator replaces the random UUID generator.
func WithIDGenerator(g model.IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithMetrics records engine activity into m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithDeadLetter keeps every batch lost to a worker fault.
func WithDeadLetter(d DeadLetter) Option {
	return func(e *Engine) { e.deadLetter = d }
}
