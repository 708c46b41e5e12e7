package main

import (
	"context"
	"sync"

	"github.com/tinytelemetry/spool/internal/linesource"
	"github.com/tinytelemetry/spool/internal/model"
)

// DefaultMuxBuffer is the merged channel capacity.
const DefaultMuxBuffer = 4096

// SourceMultiplexer merges command sources into one stream. The merged
// channel closes once every source has closed or Stop is called.
type SourceMultiplexer struct {
	ctx    context.Context
	cancel context.CancelFunc

	sources []linesource.Source
	lines   chan model.IngestEnvelope

	startOnce sync.Once
	stopOnce  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewSourceMultiplexer(parent context.Context, sources []linesource.Source, buffer int) *SourceMultiplexer {
	if buffer <= 0 {
		buffer = DefaultMuxBuffer
	}
	ctx, cancel := context.WithCancel(parent)
	return &SourceMultiplexer{
		ctx:     ctx,
		cancel:  cancel,
		sources: sources,
		lines:   make(chan model.IngestEnvelope, buffer),
	}
}

func (m *SourceMultiplexer) Start() {
	m.startOnce.Do(func() {
		for _, src := range m.sources {
			m.wg.Add(1)
			go m.forward(src)
		}
		go func() {
			m.wg.Wait()
			m.closeOutput()
		}()
	})
}

func (m *SourceMultiplexer) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		for _, src := range m.sources {
			src.Stop()
		}
		m.wg.Wait()
		m.closeOutput()
	})
}

func (m *SourceMultiplexer) HasSources() bool { return len(m.sources) > 0 }

// Names lists the sources in order.
func (m *SourceMultiplexer) Names() []string {
	names := make([]string, 0, len(m.sources))
	for _, src := range m.sources {
		names = append(names, src.Name())
	}
	return names
}

// Lines satisfies linesource.Source so the merged stream can feed an
// ingest processor directly.
func (m *SourceMultiplexer) Lines() <-chan model.IngestEnvelope { return m.lines }

func (m *SourceMultiplexer) Name() string { return "mux" }

func (m *SourceMultiplexer) forward(src linesource.Source) {
	defer m.wg.Done()

	in := src.Lines()
	for {
		select {
		case <-m.ctx.Done():
			return
		case env, ok := <-in:
			if !ok {
				return
			}
			if env.Line == "" {
				continue
			}
			select {
			case m.lines <- env:
			case <-m.ctx.Done():
				return
			}
		}
	}
}

func (m *SourceMultiplexer) closeOutput() {
	m.closeOnce.Do(func() { close(m.lines) })
}
