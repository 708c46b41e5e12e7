package engine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinytelemetry/spool/internal/model"
)

// Metrics holds Prometheus collectors describing engine activity.
type Metrics struct {
	flushes       prometheus.Counter
	faults        prometheus.Counter
	events        *prometheus.CounterVec
	intervals     prometheus.Counter
	flushDuration prometheus.Histogram
}

// NewMetrics creates the engine collectors and registers them with reg.
// Collectors already registered under the same names are reused.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Total completed flushes",
		}),
		faults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_faults_total",
			Help:      "Total flushes that failed and faulted the worker",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Total drained events handed to the consumer, by kind",
		}, []string{"kind"}),
		intervals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intervals_completed_total",
			Help:      "Total interval results produced by matching",
		}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Time spent draining and delivering one flush",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
	}

	var err error
	m.flushes = register(reg, m.flushes, &err)
	m.faults = register(reg, m.faults, &err)
	m.events = register(reg, m.events, &err)
	m.intervals = register(reg, m.intervals, &err)
	m.flushDuration = register(reg, m.flushDuration, &err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C, errp *error) C {
	if *errp != nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		*errp = err
	}
	return c
}

func (m *Metrics) observeFlush(b *model.Batch, took time.Duration) {
	m.flushes.Inc()
	m.flushDuration.Observe(took.Seconds())
	m.events.WithLabelValues(model.KindCount.String()).Add(float64(len(b.Counts)))
	m.events.WithLabelValues(model.KindAmount.String()).Add(float64(len(b.Amounts)))
	m.events.WithLabelValues(model.KindStatus.String()).Add(float64(len(b.Statuses)))
	m.events.WithLabelValues(model.KindInterval.String()).Add(float64(len(b.Intervals)))
	m.intervals.Add(float64(len(b.Results)))
}

func (m *Metrics) observeFault() {
	m.faults.Inc()
}
