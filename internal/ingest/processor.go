package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tinytelemetry/spool/internal/engine"
	"github.com/tinytelemetry/spool/internal/linesource"
	"github.com/tinytelemetry/spool/internal/model"
)

// Recorder is the part of the engine commands are applied to.
type Recorder interface {
	RecordCount(m model.Metric) error
	RecordAmount(m model.Metric, amount int64) error
	RecordStatus(m model.Metric, value int64) error
	BeginInterval(m model.Metric) (uuid.UUID, error)
	EndInterval(m model.Metric) error
	EndIntervalID(id uuid.UUID, m model.Metric) error
	CancelInterval(m model.Metric) error
	CancelIntervalID(id uuid.UUID, m model.Metric) error
}

var _ Recorder = (*engine.Engine)(nil)

// ProcessResult is the outcome of one complete command.
type ProcessResult struct {
	Source  string
	Command Command

	// ID is the interval id for begin, end and cancel commands that carry one.
	ID  uuid.UUID
	Err error
}

// Processor applies commands to a Recorder. It is not safe for concurrent
// use; one goroutine owns it.
type Processor struct {
	rec  Recorder
	refs map[string]uuid.UUID

	// multi-line JSON accumulation
	buf     strings.Builder
	depth   int
	pending bool

	applied  atomic.Int64
	rejected atomic.Int64
}

// NewProcessor creates a processor driving rec.
func NewProcessor(rec Recorder) *Processor {
	return &Processor{rec: rec, refs: make(map[string]uuid.UUID)}
}

// Applied returns how many commands reached the engine successfully.
func (p *Processor) Applied() int64 { return p.applied.Load() }

// Rejected returns how many commands failed to parse or were refused.
func (p *Processor) Rejected() int64 { return p.rejected.Load() }

// OpenRefs returns how many begin refs are waiting for their end.
func (p *Processor) OpenRefs() int { return len(p.refs) }

// ProcessEnvelope feeds one line. It returns nil while a multi-line object
// is still being accumulated.
func (p *Processor) ProcessEnvelope(env model.IngestEnvelope) *ProcessResult {
	doc, ok := p.accumulate(env.Line)
	if !ok {
		return nil
	}
	res := p.apply(doc)
	res.Source = env.Source
	if res.Err != nil {
		p.rejected.Add(1)
	} else {
		p.applied.Add(1)
	}
	return res
}

// accumulate returns a complete JSON document once braces balance.
func (p *Processor) accumulate(line string) (string, bool) {
	if !p.pending {
		if !strings.HasPrefix(strings.TrimSpace(line), "{") {
			return line, true
		}
		p.pending = true
		p.buf.Reset()
		p.depth = 0
	}

	p.buf.WriteString(line)
	p.buf.WriteByte('\n')
	p.depth += CountJSONDepth(line)
	if p.depth > 0 {
		return "", false
	}

	doc := strings.TrimSpace(p.buf.String())
	p.pending = false
	p.buf.Reset()
	p.depth = 0
	return doc, true
}

func (p *Processor) apply(doc string) *ProcessResult {
	cmd, err := ParseCommand(doc)
	if err != nil {
		return &ProcessResult{Err: err}
	}
	res := &ProcessResult{Command: cmd}
	m := cmd.MetricValue()

	switch cmd.Op {
	case OpCount:
		res.Err = p.rec.RecordCount(m)
	case OpAmount:
		res.Err = p.rec.RecordAmount(m, cmd.Value)
	case OpStatus:
		res.Err = p.rec.RecordStatus(m, cmd.Value)
	case OpBegin:
		res.ID, res.Err = p.rec.BeginInterval(m)
		if res.Err == nil && cmd.Ref != "" {
			p.refs[cmd.Ref] = res.ID
		}
	case OpEnd, OpCancel:
		res.ID, res.Err = p.close(cmd, m)
	}
	return res
}

func (p *Processor) close(cmd Command, m model.Metric) (uuid.UUID, error) {
	if !cmd.correlated() {
		if cmd.Op == OpEnd {
			return uuid.Nil, p.rec.EndInterval(m)
		}
		return uuid.Nil, p.rec.CancelInterval(m)
	}

	id, err := p.resolve(cmd)
	if err != nil {
		return uuid.Nil, err
	}
	if cmd.Op == OpEnd {
		err = p.rec.EndIntervalID(id, m)
	} else {
		err = p.rec.CancelIntervalID(id, m)
	}
	if err == nil && cmd.Ref != "" {
		delete(p.refs, cmd.Ref)
	}
	return id, err
}

func (p *Processor) resolve(cmd Command) (uuid.UUID, error) {
	if cmd.ID != "" {
		return uuid.Parse(cmd.ID)
	}
	id, ok := p.refs[cmd.Ref]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: unknown ref %q", ErrInvalidCommand, cmd.Ref)
	}
	return id, nil
}

// Run applies every line from src until it closes or ctx ends. Rejected
// commands are logged and skipped; a worker fault stops the run since the
// engine will not flush again.
func (p *Processor) Run(ctx context.Context, src linesource.Source) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-src.Lines():
			if !ok {
				return nil
			}
			res := p.ProcessEnvelope(env)
			if res == nil || res.Err == nil {
				continue
			}
			if engine.IsWorkerFault(res.Err) {
				return fmt.Errorf("ingest: %w", res.Err)
			}
			log.Printf("ingest: %s: rejected %q: %v", env.Source, res.Command.Op, res.Err)
		}
	}
}

// CountJSONDepth returns the net change in object/array nesting across
// line, ignoring brackets inside strings.
func CountJSONDepth(line string) int {
	depth := 0
	inString := false
	escaped := false

	for _, r := range line {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				depth++
			}
		case '}', ']':
			if !inString {
				depth--
			}
		}
	}
	return depth
}
