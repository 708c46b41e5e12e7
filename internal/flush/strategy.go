// Package flush decides when buffered metric events are drained and
// dispatched. Each strategy owns at most one flushing goroutine, so a
// dispatch never runs concurrently with itself.
package flush

import (
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/spool/internal/model"
)

// DispatchFunc drains every buffer and hands the batches to the consumer.
type DispatchFunc func() error

// Strategy triggers flushes. NotifyBuffered and NotifyCleared are called by
// the event buffers; Err hands a captured worker failure to the next caller.
type Strategy interface {
	Start() error
	Stop(drainRemaining bool) error
	NotifyBuffered(kind model.Kind)
	NotifyCleared(kind model.Kind)
	Err() error
	Faulted() bool
	Flushes() uint64
	Buffered(kind model.Kind) int64
}

// Kind names a strategy.
type Kind string

const (
	KindManual      Kind = "manual"
	KindSizeLimited Kind = "size-limited"
	KindLooping     Kind = "looping"
	KindHybrid      Kind = "hybrid"
)

// ParseKind accepts the canonical names plus a few spellings seen in config files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manual":
		return KindManual, nil
	case "size-limited", "size_limited", "sizelimited", "size":
		return KindSizeLimited, nil
	case "looping", "loop", "interval":
		return KindLooping, nil
	case "hybrid", "":
		return KindHybrid, nil
	default:
		return "", fmt.Errorf("unknown flush strategy %q", s)
	}
}

// Spec describes a strategy to build.
type Spec struct {
	Kind Kind

	// Limit is the buffered-event threshold for size-limited and hybrid.
	Limit int

	// Interval is the loop period for looping and the watchdog period for hybrid.
	Interval time.Duration

	// Iterations bounds the number of looping flushes; 0 means unbounded.
	Iterations int
}

// ManualSpec flushes only when Flush is called.
func ManualSpec() Spec { return Spec{Kind: KindManual} }

// SizeLimitedSpec flushes whenever limit events are buffered.
func SizeLimitedSpec(limit int) Spec { return Spec{Kind: KindSizeLimited, Limit: limit} }

// LoopingSpec flushes every interval.
func LoopingSpec(interval time.Duration) Spec { return Spec{Kind: KindLooping, Interval: interval} }

// HybridSpec flushes at limit events or at least once per interval.
func HybridSpec(limit int, interval time.Duration) Spec {
	return Spec{Kind: KindHybrid, Limit: limit, Interval: interval}
}

func (s Spec) String() string {
	switch s.Kind {
	case KindSizeLimited:
		return fmt.Sprintf("%s(limit=%d)", s.Kind, s.Limit)
	case KindLooping:
		return fmt.Sprintf("%s(interval=%s)", s.Kind, s.Interval)
	case KindHybrid:
		return fmt.Sprintf("%s(limit=%d, interval=%s)", s.Kind, s.Limit, s.Interval)
	default:
		return string(s.Kind)
	}
}

// New builds the strategy described by spec around fn.
func New(spec Spec, fn DispatchFunc) (Strategy, error) {
	switch spec.Kind {
	case KindManual:
		return NewManual(fn)
	case KindSizeLimited:
		return NewSizeLimited(spec.Limit, fn)
	case KindLooping:
		return NewLooping(spec.Interval, spec.Iterations, fn)
	case KindHybrid:
		return NewHybrid(spec.Limit, spec.Interval, fn)
	default:
		return nil, model.NewConfigurationError("unknown flush strategy %q", spec.Kind)
	}
}

func checkDispatch(fn DispatchFunc) error {
	if fn == nil {
		return model.NewConfigurationError("dispatch function cannot be nil")
	}
	return nil
}

func checkLimit(limit int) error {
	if limit < 1 {
		return model.NewConfigurationError("flush limit must be >= 1, got %d", limit)
	}
	return nil
}

func checkInterval(interval time.Duration) error {
	if interval <= 0 {
		return model.NewConfigurationError("flush interval must be positive, got %s", interval)
	}
	return nil
}
