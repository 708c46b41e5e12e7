package flush

import "sync"

// Manual has no goroutine of its own; the owner calls Flush.
type Manual struct {
	worker
	flushMu sync.Mutex
}

// NewManual creates a manual strategy.
func NewManual(fn DispatchFunc) (*Manual, error) {
	if err := checkDispatch(fn); err != nil {
		return nil, err
	}
	m := &Manual{}
	m.init(string(KindManual), fn)
	return m, nil
}

// Start marks the strategy running.
func (m *Manual) Start() error {
	return m.start()
}

// Flush dispatches on the calling goroutine. Concurrent callers are
// serialised. A failed dispatch poisons the strategy like any other worker:
// the failure is returned once as a worker fault and later flushes do nothing.
func (m *Manual) Flush() error {
	if m.isStopped() {
		return ErrStopped
	}
	m.flushMu.Lock()
	defer m.flushMu.Unlock()
	return m.flushLocked()
}

// flushLocked runs with flushMu held.
func (m *Manual) flushLocked() error {
	if m.Faulted() {
		return nil
	}
	if !m.flush() {
		return m.Err()
	}
	return nil
}

// Stop flushes once when drainRemaining is set and anything is buffered.
// Only the first call does anything; later calls report a fault not yet
// surfaced.
func (m *Manual) Stop(drainRemaining bool) error {
	m.lifecycleMu.Lock()
	if !m.started {
		m.lifecycleMu.Unlock()
		return ErrNotStarted
	}
	if m.stopped {
		m.lifecycleMu.Unlock()
		return m.Err()
	}
	m.stopped = true
	m.lifecycleMu.Unlock()

	m.flushMu.Lock()
	if drainRemaining && m.buffered() > 0 {
		m.flushLocked()
	}
	m.flushMu.Unlock()

	close(m.done)
	return m.Err()
}
