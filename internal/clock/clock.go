// Package clock provides the monotonic tick sources consumed by the engine.
package clock

import (
	"sync"
	"time"
)

// NanosecondFrequency is the tick frequency of System: one tick per nanosecond.
const NanosecondFrequency int64 = int64(time.Second)

// System is a monotonic clock backed by the runtime's monotonic reading.
// UtcNow is derived from the wall-clock anchor taken at construction plus the
// monotonic elapsed time, so it never jumps when the system clock is adjusted.
type System struct {
	anchor time.Time
}

// NewSystem creates a System clock anchored at the current instant.
func NewSystem() *System {
	return &System{anchor: time.Now()}
}

// ElapsedTicks returns nanoseconds elapsed since the anchor.
func (c *System) ElapsedTicks() int64 {
	return int64(time.Since(c.anchor))
}

// Frequency returns ticks per second.
func (c *System) Frequency() int64 {
	return NanosecondFrequency
}

// UtcNow returns the anchored wall-clock time in UTC.
func (c *System) UtcNow() time.Time {
	return c.anchor.Add(time.Since(c.anchor)).UTC()
}

// Manual is a clock whose ticks only move when told to. It is safe for
// concurrent use.
type Manual struct {
	mu    sync.Mutex
	ticks int64
	freq  int64
	start time.Time
}

// NewManual creates a manual clock at tick 0 with the given frequency
// (ticks per second) and wall-clock start.
func NewManual(freq int64, start time.Time) *Manual {
	if freq <= 0 {
		freq = NanosecondFrequency
	}
	return &Manual{freq: freq, start: start.UTC()}
}

// Advance moves the clock by n ticks. Negative values move it backwards,
// which models a wall-clock adjustment.
func (c *Manual) Advance(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks += n
}

// Set moves the clock to an absolute tick count.
func (c *Manual) Set(ticks int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = ticks
}

func (c *Manual) ElapsedTicks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

func (c *Manual) Frequency() int64 { return c.freq }

func (c *Manual) UtcNow() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start.Add(time.Duration(float64(c.ticks) / float64(c.freq) * float64(time.Second)))
}
