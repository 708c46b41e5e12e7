package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/spool/internal/model"
)

type countingNotifier struct {
	mu       sync.Mutex
	buffered [model.NumKinds]int
	cleared  [model.NumKinds]int
}

func (n *countingNotifier) NotifyBuffered(k model.Kind) {
	n.mu.Lock()
	n.buffered[k]++
	n.mu.Unlock()
}

func (n *countingNotifier) NotifyCleared(k model.Kind) {
	n.mu.Lock()
	n.buffered[k] = 0
	n.cleared[k]++
	n.mu.Unlock()
}

var requests = model.Metric{Name: "requests"}

func TestSet_FIFOPerKind(t *testing.T) {
	s := New(nil)
	for i := int64(0); i < 5; i++ {
		s.PushAmount(model.AmountEvent{Metric: requests, Amount: i})
	}

	got := s.DrainAmounts()
	require.Len(t, got, 5)
	for i, e := range got {
		assert.Equal(t, int64(i), e.Amount)
	}
	assert.Empty(t, s.DrainAmounts())
}

func TestSet_KindsAreIndependent(t *testing.T) {
	s := New(nil)
	s.PushCount(model.CountEvent{Metric: requests})
	s.PushStatus(model.StatusEvent{Metric: requests, Value: 3})

	assert.Equal(t, 1, s.Len(model.KindCount))
	assert.Equal(t, 0, s.Len(model.KindAmount))
	assert.Equal(t, 1, s.Len(model.KindStatus))
	assert.Equal(t, 0, s.Len(model.KindInterval))

	s.DrainCounts()
	assert.Equal(t, 0, s.Len(model.KindCount))
	assert.Equal(t, 1, s.Len(model.KindStatus))
}

func TestSet_NotifierSeesAppendsAndDrains(t *testing.T) {
	n := &countingNotifier{}
	s := New(n)

	s.PushCount(model.CountEvent{Metric: requests})
	s.PushCount(model.CountEvent{Metric: requests})
	s.PushInterval(model.IntervalEvent{Metric: requests})

	assert.Equal(t, 2, n.buffered[model.KindCount])
	assert.Equal(t, 1, n.buffered[model.KindInterval])

	s.DrainCounts()
	assert.Equal(t, 0, n.buffered[model.KindCount])
	assert.Equal(t, 1, n.cleared[model.KindCount])
	assert.Equal(t, 1, n.buffered[model.KindInterval])
}

// Every event pushed by concurrent producers shows up in exactly one drained
// batch, while a consumer drains concurrently.
func TestSet_ConcurrentNoLossNoDuplication(t *testing.T) {
	s := New(&countingNotifier{})
	const producers = 8
	const perProducer = 2000

	done := make(chan struct{})
	seen := make(map[int64]int)
	var drainWg sync.WaitGroup
	drainWg.Add(1)
	go func() {
		defer drainWg.Done()
		collect := func() {
			for _, e := range s.DrainAmounts() {
				seen[e.Amount]++
			}
		}
		for {
			select {
			case <-done:
				collect()
				return
			default:
				collect()
				time.Sleep(50 * time.Microsecond)
			}
		}
	}()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				s.PushAmount(model.AmountEvent{Metric: requests, Amount: int64(p*perProducer + i)})
			}
		}(p)
	}
	wg.Wait()
	close(done)
	drainWg.Wait()

	require.Len(t, seen, producers*perProducer)
	for v, n := range seen {
		if n != 1 {
			t.Fatalf("event %d delivered %d times", v, n)
		}
	}
}

// Within one producer, drained order matches push order even across batches.
func TestSet_OrderAcrossBatches(t *testing.T) {
	s := New(nil)
	var got []int64
	for i := int64(0); i < 100; i++ {
		s.PushStatus(model.StatusEvent{Metric: requests, Value: i})
		if i%7 == 0 {
			for _, e := range s.DrainStatuses() {
				got = append(got, e.Value)
			}
		}
	}
	for _, e := range s.DrainStatuses() {
		got = append(got, e.Value)
	}

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, int64(i), v)
	}
}
