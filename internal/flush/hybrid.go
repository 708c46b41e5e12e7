package flush

import (
	"sync"
	"time"
)

// Hybrid is a size-limited strategy with a watchdog that forces a flush when
// none has completed within the interval. Only the size-limited worker ever
// dispatches; the watchdog just raises its signal.
type Hybrid struct {
	SizeLimited
	interval time.Duration
	now      func() time.Time

	lastMu    sync.Mutex
	lastFlush time.Time
}

// NewHybrid creates a hybrid strategy.
func NewHybrid(limit int, interval time.Duration, fn DispatchFunc) (*Hybrid, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	if err := checkInterval(interval); err != nil {
		return nil, err
	}
	if err := checkDispatch(fn); err != nil {
		return nil, err
	}
	h := &Hybrid{interval: interval, now: time.Now}
	h.SizeLimited.init(string(KindHybrid), fn, limit)
	h.onFlushed = h.recordFlush
	return h, nil
}

// Start launches the flush worker and the watchdog.
func (h *Hybrid) Start() error {
	return h.start(h.loop, h.watch)
}

// Stop signals both goroutines to exit and waits for them.
func (h *Hybrid) Stop(drainRemaining bool) error {
	return h.stop(drainRemaining)
}

func (h *Hybrid) recordFlush() {
	h.lastMu.Lock()
	h.lastFlush = h.now()
	h.lastMu.Unlock()
}

// LastFlush returns when the most recent flush completed.
func (h *Hybrid) LastFlush() time.Time {
	h.lastMu.Lock()
	defer h.lastMu.Unlock()
	return h.lastFlush
}

func (h *Hybrid) watch() {
	var seen time.Time
	timer := time.NewTimer(h.interval)
	defer timer.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-timer.C:
		}
		if h.Faulted() {
			return
		}

		wait := h.interval
		if completed := h.LastFlush(); completed.After(seen) {
			seen = completed
			wait = h.interval - h.now().Sub(completed)
			if wait <= 0 {
				h.set()
				wait = h.interval
			}
		} else {
			h.set()
		}
		timer.Reset(wait)
	}
}
