package flush

import "github.com/tinytelemetry/spool/internal/model"

// SizeLimited flushes whenever the number of buffered events across all
// kinds reaches its limit.
type SizeLimited struct {
	worker
	limit int64

	// signal is an auto-reset event: capacity one, so repeated sets while
	// the worker is busy coalesce into a single pending wakeup.
	signal chan struct{}
}

// NewSizeLimited creates a size-limited strategy. limit must be at least 1.
func NewSizeLimited(limit int, fn DispatchFunc) (*SizeLimited, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	if err := checkDispatch(fn); err != nil {
		return nil, err
	}
	s := &SizeLimited{}
	s.init(string(KindSizeLimited), fn, limit)
	return s, nil
}

func (s *SizeLimited) init(name string, fn DispatchFunc, limit int) {
	s.worker.init(name, fn)
	s.limit = int64(limit)
	s.signal = make(chan struct{}, 1)
}

// NotifyBuffered counts the event and wakes the worker once the limit is hit.
func (s *SizeLimited) NotifyBuffered(kind model.Kind) {
	if s.notify(kind) >= s.limit {
		s.set()
	}
}

func (s *SizeLimited) set() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *SizeLimited) reset() {
	select {
	case <-s.signal:
	default:
	}
}

// Start launches the worker.
func (s *SizeLimited) Start() error {
	return s.start(s.loop)
}

// Stop signals the worker to exit and waits for it.
func (s *SizeLimited) Stop(drainRemaining bool) error {
	return s.stop(drainRemaining)
}

func (s *SizeLimited) loop() {
	for {
		select {
		case <-s.done:
			s.finalDrain()
			return
		case <-s.signal:
		}

		if !s.flush() {
			return
		}
		// Drop wakeups raised by events this flush already took, then re-arm
		// if producers refilled past the limit while we were flushing.
		s.reset()
		if s.buffered() >= s.limit {
			s.set()
		}
	}
}
