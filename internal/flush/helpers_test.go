package flush

import (
	"sync"
	"time"

	"github.com/tinytelemetry/spool/internal/model"
	"github.com/tinytelemetry/spool/internal/queue"
)

var hits = model.Metric{Name: "hits"}

// harness wires a strategy to a real queue set and records every flush.
type harness struct {
	set *queue.Set

	mu      sync.Mutex
	batches []int
	times   []time.Time
	fail    error

	// delay is set before the strategy starts.
	delay time.Duration
}

func newHarness() *harness {
	return &harness{set: queue.New(nil)}
}

func (h *harness) dispatch() error {
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	n := len(h.set.DrainCounts()) + len(h.set.DrainAmounts()) +
		len(h.set.DrainStatuses()) + len(h.set.DrainIntervals())

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail != nil {
		return h.fail
	}
	h.batches = append(h.batches, n)
	h.times = append(h.times, time.Now())
	return nil
}

func (h *harness) failWith(err error) {
	h.mu.Lock()
	h.fail = err
	h.mu.Unlock()
}

func (h *harness) push(n int) {
	for i := 0; i < n; i++ {
		h.set.PushCount(model.CountEvent{Metric: hits})
	}
}

func (h *harness) flushCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.batches)
}

func (h *harness) delivered() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, n := range h.batches {
		total += n
	}
	return total
}

func (h *harness) flushTimes() []time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Time(nil), h.times...)
}
