package flush

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/tinytelemetry/spool/internal/model"
)

// worker is the state every strategy shares: buffered counters, lifecycle,
// goroutine join and fault capture. Strategies embed it and supply their own
// loops.
type worker struct {
	name     string
	dispatch DispatchFunc

	counters [model.NumKinds]atomic.Int64
	flushes  atomic.Uint64

	// onFlushed runs on the flushing goroutine after every successful flush.
	onFlushed func()

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	done  chan struct{}
	drain atomic.Bool
	wg    sync.WaitGroup

	fault faultCell
}

func (w *worker) init(name string, fn DispatchFunc) {
	w.name = name
	w.dispatch = fn
	w.done = make(chan struct{})
}

// NotifyBuffered counts one more buffered event of kind.
func (w *worker) NotifyBuffered(kind model.Kind) {
	w.notify(kind)
}

// notify increments the kind's counter and returns the total across kinds.
func (w *worker) notify(kind model.Kind) int64 {
	w.counters[kind].Add(1)
	return w.buffered()
}

// NotifyCleared resets the kind's counter after its buffer was drained.
func (w *worker) NotifyCleared(kind model.Kind) {
	w.counters[kind].Store(0)
}

// Buffered returns the number of events buffered for kind since its last drain.
func (w *worker) Buffered(kind model.Kind) int64 {
	return w.counters[kind].Load()
}

func (w *worker) buffered() int64 {
	var n int64
	for i := range w.counters {
		n += w.counters[i].Load()
	}
	return n
}

// Err returns a pending worker fault and clears it.
func (w *worker) Err() error {
	return w.fault.take()
}

// Faulted reports whether a flush has ever failed.
func (w *worker) Faulted() bool {
	return w.fault.faulted()
}

// Flushes returns the number of completed flushes.
func (w *worker) Flushes() uint64 {
	return w.flushes.Load()
}

// flush runs one dispatch. It returns false once the worker is faulted, at
// which point the calling loop must exit.
func (w *worker) flush() bool {
	if w.fault.faulted() {
		return false
	}
	if err := w.safeDispatch(); err != nil {
		w.fault.set(err)
		log.Printf("flush: %s worker faulted, no further flushes: %v", w.name, err)
		return false
	}
	w.flushes.Add(1)
	if w.onFlushed != nil {
		w.onFlushed()
	}
	return true
}

func (w *worker) safeDispatch() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panic: %v", r)
		}
	}()
	return w.dispatch()
}

// finalDrain runs on the worker goroutine as it exits: one last flush when
// Stop asked for it and something is still buffered.
func (w *worker) finalDrain() {
	if w.drain.Load() && w.buffered() > 0 {
		w.flush()
	}
}

// start launches each loop on its own goroutine.
func (w *worker) start(loops ...func()) error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.stopped {
		return ErrStopped
	}
	if w.started {
		return ErrAlreadyStarted
	}
	w.started = true

	for _, loop := range loops {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			loop()
		}()
	}
	return nil
}

// stop requests cooperative termination and joins the loops. A second call
// only reports any fault not yet surfaced.
func (w *worker) stop(drainRemaining bool) error {
	w.lifecycleMu.Lock()
	if !w.started {
		w.lifecycleMu.Unlock()
		return ErrNotStarted
	}
	if w.stopped {
		w.lifecycleMu.Unlock()
		return w.Err()
	}
	w.stopped = true
	w.lifecycleMu.Unlock()

	w.drain.Store(drainRemaining)
	close(w.done)
	w.wg.Wait()
	return w.Err()
}

func (w *worker) isStopped() bool {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()
	return w.stopped
}
