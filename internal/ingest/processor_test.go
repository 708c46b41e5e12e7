package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tinytelemetry/spool/internal/engine"
	"github.com/tinytelemetry/spool/internal/flush"
	"github.com/tinytelemetry/spool/internal/idgen"
	"github.com/tinytelemetry/spool/internal/linesource"
	"github.com/tinytelemetry/spool/internal/model"
)

// fakeRecorder logs every call as "op:metric[:value|id]".
type fakeRecorder struct {
	calls []string
	ids   idgen.Sequential
	err   error
}

func (f *fakeRecorder) RecordCount(m model.Metric) error {
	f.calls = append(f.calls, "count:"+m.Name)
	return f.err
}
func (f *fakeRecorder) RecordAmount(m model.Metric, v int64) error {
	f.calls = append(f.calls, "amount:"+m.Name)
	return f.err
}
func (f *fakeRecorder) RecordStatus(m model.Metric, v int64) error {
	f.calls = append(f.calls, "status:"+m.Name)
	return f.err
}
func (f *fakeRecorder) BeginInterval(m model.Metric) (uuid.UUID, error) {
	f.calls = append(f.calls, "begin:"+m.Name)
	return f.ids.NewID(), f.err
}
func (f *fakeRecorder) EndInterval(m model.Metric) error {
	f.calls = append(f.calls, "end:"+m.Name)
	return f.err
}
func (f *fakeRecorder) EndIntervalID(id uuid.UUID, m model.Metric) error {
	f.calls = append(f.calls, "end:"+m.Name+":"+id.String())
	return f.err
}
func (f *fakeRecorder) CancelInterval(m model.Metric) error {
	f.calls = append(f.calls, "cancel:"+m.Name)
	return f.err
}
func (f *fakeRecorder) CancelIntervalID(id uuid.UUID, m model.Metric) error {
	f.calls = append(f.calls, "cancel:"+m.Name+":"+id.String())
	return f.err
}

func feed(p *Processor, lines ...string) []*ProcessResult {
	var out []*ProcessResult
	for _, l := range lines {
		if r := p.ProcessEnvelope(model.IngestEnvelope{Source: "test", Line: l}); r != nil {
			out = append(out, r)
		}
	}
	return out
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line    string
		wantErr string
	}{
		{`{"op":"count","metric":"requests"}`, ""},
		{`{"op":"AMOUNT","metric":"bytes","value":12}`, ""},
		{`{"op":"end","metric":"upload","id":"00000000-0000-0000-0000-000000000001"}`, ""},
		{`{"metric":"requests"}`, "missing op"},
		{`{"op":"histogram","metric":"x"}`, "unknown op"},
		{`{"op":"count"}`, "missing metric"},
		{`{"op":"end","metric":"x","id":"not-a-uuid"}`, "bad id"},
		{`{"op":"begin","metric":"x","id":"00000000-0000-0000-0000-000000000001"}`, "cannot carry an id"},
		{`{"op":"count","metric":"x","extra":1}`, "unknown field"},
		{`not json`, "invalid command"},
	}
	for _, tt := range tests {
		_, err := ParseCommand(tt.line)
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("ParseCommand(%s): %v", tt.line, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("ParseCommand(%s) err = %v, want containing %q", tt.line, err, tt.wantErr)
		}
		if !errors.Is(err, ErrInvalidCommand) {
			t.Errorf("ParseCommand(%s) err not ErrInvalidCommand", tt.line)
		}
	}
}

func TestProcessorAppliesEachOp(t *testing.T) {
	t.Parallel()
	rec := &fakeRecorder{}
	p := NewProcessor(rec)

	results := feed(p,
		`{"op":"count","metric":"requests"}`,
		`{"op":"amount","metric":"bytes","value":5}`,
		`{"op":"status","metric":"workers","value":3}`,
		`{"op":"begin","metric":"db"}`,
		`{"op":"end","metric":"db"}`,
		`{"op":"cancel","metric":"db"}`,
	)
	if len(results) != 6 {
		t.Fatalf("got %d results, want 6", len(results))
	}
	want := []string{"count:requests", "amount:bytes", "status:workers", "begin:db", "end:db", "cancel:db"}
	if strings.Join(rec.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", rec.calls, want)
	}
	if p.Applied() != 6 || p.Rejected() != 0 {
		t.Errorf("applied=%d rejected=%d", p.Applied(), p.Rejected())
	}
}

func TestProcessorRefsResolveToBeginIDs(t *testing.T) {
	t.Parallel()
	rec := &fakeRecorder{}
	p := NewProcessor(rec)

	results := feed(p,
		`{"op":"begin","metric":"upload","ref":"a"}`,
		`{"op":"begin","metric":"upload","ref":"b"}`,
		`{"op":"end","metric":"upload","ref":"b"}`,
		`{"op":"cancel","metric":"upload","ref":"a"}`,
	)
	first, second := results[0].ID, results[1].ID
	if results[2].ID != second || results[3].ID != first {
		t.Errorf("refs resolved to %v,%v; want %v,%v", results[2].ID, results[3].ID, second, first)
	}
	if p.OpenRefs() != 0 {
		t.Errorf("OpenRefs = %d after end/cancel, want 0", p.OpenRefs())
	}
	if rec.calls[2] != "end:upload:"+second.String() {
		t.Errorf("third call = %s", rec.calls[2])
	}
}

func TestProcessorUnknownRef(t *testing.T) {
	t.Parallel()
	p := NewProcessor(&fakeRecorder{})

	res := feed(p, `{"op":"end","metric":"upload","ref":"nope"}`)
	if len(res) != 1 || !errors.Is(res[0].Err, ErrInvalidCommand) {
		t.Fatalf("result = %+v", res)
	}
	if p.Rejected() != 1 {
		t.Errorf("Rejected = %d, want 1", p.Rejected())
	}
}

func TestProcessorMultiLineJSON(t *testing.T) {
	t.Parallel()
	rec := &fakeRecorder{}
	p := NewProcessor(rec)

	results := feed(p,
		`{`,
		`  "op": "amount",`,
		`  "metric": "bytes {in}",`,
		`  "value": 9`,
		`}`,
	)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("unexpected error: %v", results[0].Err)
	}
	if results[0].Command.Value != 9 || results[0].Command.Metric != "bytes {in}" {
		t.Errorf("command = %+v", results[0].Command)
	}
}

func TestProcessorRecorderErrorIsCounted(t *testing.T) {
	t.Parallel()
	rec := &fakeRecorder{err: engine.ErrStopped}
	p := NewProcessor(rec)

	res := feed(p, `{"op":"count","metric":"requests"}`)
	if !errors.Is(res[0].Err, engine.ErrStopped) {
		t.Errorf("err = %v, want ErrStopped", res[0].Err)
	}
	if p.Rejected() != 1 {
		t.Errorf("Rejected = %d", p.Rejected())
	}
}

func TestCountJSONDepth(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line string
		want int
	}{
		{`{`, 1},
		{`}`, -1},
		{`{"a":[1,2]}`, 0},
		{`{"a":"}{"`, 1},
		{`"esc \" {"`, 0},
	}
	for _, tt := range tests {
		if got := CountJSONDepth(tt.line); got != tt.want {
			t.Errorf("CountJSONDepth(%q) = %d, want %d", tt.line, got, tt.want)
		}
	}
}

// countingConsumer counts delivered events.
type countingConsumer struct{ counts, intervals int }

func (c *countingConsumer) ProcessCountEvents(e []model.CountEvent) error {
	c.counts += len(e)
	return nil
}
func (c *countingConsumer) ProcessAmountEvents([]model.AmountEvent) error { return nil }
func (c *countingConsumer) ProcessStatusEvents([]model.StatusEvent) error { return nil }
func (c *countingConsumer) ProcessIntervalEvents(r []model.IntervalResult) error {
	c.intervals += len(r)
	return nil
}

func TestRunDrivesEngine(t *testing.T) {
	c := &countingConsumer{}
	eng, err := engine.New(c, engine.Config{Checking: true, Strategy: flush.ManualSpec()})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	in := strings.Join([]string{
		`{"op":"count","metric":"requests"}`,
		`{"op":"count","metric":"requests"}`,
		`garbage`,
		`{"op":"begin","metric":"job","ref":"j1"}`,
		`{"op":"end","metric":"job","ref":"j1"}`,
	}, "\n") + "\n"
	src := linesource.NewReader(context.Background(), "test", strings.NewReader(in), linesource.Config{})

	p := NewProcessor(eng)
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background(), src) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not finish at EOF")
	}

	if err := eng.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if c.counts != 2 || c.intervals != 1 {
		t.Errorf("delivered counts=%d intervals=%d, want 2/1", c.counts, c.intervals)
	}
	if p.Rejected() != 1 {
		t.Errorf("Rejected = %d, want 1", p.Rejected())
	}
}

func TestRunStopsOnWorkerFault(t *testing.T) {
	rec := &fakeRecorder{err: model.NewWorkerFault(errors.New("sink down"))}
	in := `{"op":"count","metric":"requests"}` + "\n" + `{"op":"count","metric":"requests"}` + "\n"
	src := linesource.NewReader(context.Background(), "test", strings.NewReader(in), linesource.Config{})

	err := NewProcessor(rec).Run(context.Background(), src)
	if !engine.IsWorkerFault(err) {
		t.Fatalf("Run err = %v, want worker fault", err)
	}
	if len(rec.calls) != 1 {
		t.Errorf("calls after fault = %d, want 1", len(rec.calls))
	}
}
