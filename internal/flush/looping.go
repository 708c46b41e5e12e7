package flush

import (
	"time"

	"github.com/tinytelemetry/spool/internal/model"
)

// Looping flushes unconditionally, sleeps for its interval and repeats.
type Looping struct {
	worker
	interval   time.Duration
	iterations int
}

// NewLooping creates a looping strategy. iterations > 0 stops the loop after
// that many flushes; the worker then idles until Stop.
func NewLooping(interval time.Duration, iterations int, fn DispatchFunc) (*Looping, error) {
	if err := checkInterval(interval); err != nil {
		return nil, err
	}
	if iterations < 0 {
		return nil, model.NewConfigurationError("loop iterations must be >= 0, got %d", iterations)
	}
	if err := checkDispatch(fn); err != nil {
		return nil, err
	}
	l := &Looping{interval: interval, iterations: iterations}
	l.init(string(KindLooping), fn)
	return l, nil
}

// Start launches the worker.
func (l *Looping) Start() error {
	return l.start(l.loop)
}

// Stop signals the worker to exit and waits for it.
func (l *Looping) Stop(drainRemaining bool) error {
	return l.stop(drainRemaining)
}

func (l *Looping) loop() {
	timer := time.NewTimer(l.interval)
	timer.Stop()
	defer timer.Stop()

	for i := 0; l.iterations == 0 || i < l.iterations; i++ {
		select {
		case <-l.done:
			l.finalDrain()
			return
		default:
		}

		if !l.flush() {
			return
		}

		timer.Reset(l.interval)
		select {
		case <-l.done:
			l.finalDrain()
			return
		case <-timer.C:
		}
	}

	<-l.done
	l.finalDrain()
}
