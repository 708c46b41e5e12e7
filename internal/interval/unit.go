package interval

import (
	"fmt"
	"math"
	"math/bits"
	"strings"
)

// Unit is the base unit interval durations are reported in.
type Unit int

const (
	Millisecond Unit = iota
	Nanosecond
)

func (u Unit) String() string {
	switch u {
	case Millisecond:
		return "millisecond"
	case Nanosecond:
		return "nanosecond"
	default:
		return "unknown"
	}
}

func (u Unit) perSecond() uint64 {
	if u == Nanosecond {
		return 1_000_000_000
	}
	return 1_000
}

// ParseUnit parses "millisecond"/"ms" or "nanosecond"/"ns".
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "millisecond", "milliseconds", "ms", "":
		return Millisecond, nil
	case "nanosecond", "nanoseconds", "ns":
		return Nanosecond, nil
	default:
		return Millisecond, fmt.Errorf("unknown interval unit %q", s)
	}
}

// Convert scales a tick delta from a clock running at freq ticks per second
// into unit. Negative deltas are clamped to zero. Results that do not fit in
// an int64 saturate at math.MaxInt64.
func Convert(ticks, freq int64, unit Unit) int64 {
	if ticks <= 0 || freq <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(ticks), unit.perSecond())
	if hi >= uint64(freq) {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, uint64(freq))
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}
