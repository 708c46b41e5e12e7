package deadletter

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tinytelemetry/spool/internal/model"
)

type sink struct {
	counts      int
	amounts     int
	results     int
	fail        error
	failAmounts error
}

func (s *sink) ProcessCountEvents(e []model.CountEvent) error {
	if s.fail != nil {
		return s.fail
	}
	s.counts += len(e)
	return nil
}
func (s *sink) ProcessAmountEvents(e []model.AmountEvent) error {
	if s.failAmounts != nil {
		return s.failAmounts
	}
	s.amounts += len(e)
	return nil
}
func (s *sink) ProcessStatusEvents([]model.StatusEvent) error   { return nil }
func (s *sink) ProcessIntervalEvents(r []model.IntervalResult) error {
	s.results += len(r)
	return nil
}

func testBatch() *model.Batch {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m := model.Metric{Name: "requests"}
	id := uuid.MustParse("00000000-0000-0000-0000-000000000007")
	start := model.IntervalEvent{ID: id, Metric: model.Metric{Name: "db_query"}, Point: model.Start, Ticks: 10, Time: now}
	return &model.Batch{
		Counts:    []model.CountEvent{{Metric: m, Time: now}, {Metric: m, Time: now}},
		Amounts:   []model.AmountEvent{{Metric: m, Amount: 42, Time: now}},
		Intervals: []model.IntervalEvent{start},
		Results:   []model.IntervalResult{{Start: start, Duration: 5}},
	}
}

func TestAppendReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dead", "letters.jsonl")

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	if err := w.Append(errors.New("disk full"), testBatch()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Append(nil, &model.Batch{Counts: testBatch().Counts}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var got []Entry
	if err := Replay(path, func(e Entry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("replayed %d entries, want 2", len(got))
	}
	if got[0].Seq != 1 || got[1].Seq != 2 {
		t.Errorf("seqs = %d,%d, want 1,2", got[0].Seq, got[1].Seq)
	}
	if got[0].Reason != "disk full" {
		t.Errorf("reason = %q", got[0].Reason)
	}
	if got[0].Len() != 4 {
		t.Errorf("Len = %d, want 4", got[0].Len())
	}
	if got[0].Amounts[0].Amount != 42 {
		t.Errorf("amount = %d, want 42", got[0].Amounts[0].Amount)
	}
	if got[0].Results[0].Start.ID != testBatch().Intervals[0].ID {
		t.Errorf("interval id did not round-trip: %v", got[0].Results[0].Start.ID)
	}
}

func TestReopenContinuesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "letters.jsonl")

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = w.Append(nil, testBatch())
	_ = w.Append(nil, testBatch())
	_ = w.Close()

	w, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w.Close()
	if err := w.Append(nil, testBatch()); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var last uint64
	_ = Replay(path, func(e Entry) error { last = e.Seq; return nil })
	if last != 3 {
		t.Errorf("last seq = %d, want 3", last)
	}
}

func TestReplayIgnoresPartialTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "letters.jsonl")

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = w.Append(nil, testBatch())
	_ = w.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = f.WriteString(`{"seq":2,"reason":"trunc`)
	_ = f.Close()

	n := 0
	if err := Replay(path, func(Entry) error { n++; return nil }); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n != 1 {
		t.Errorf("replayed %d entries, want 1", n)
	}
}

func TestDrainRedeliversAndTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "letters.jsonl")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	_ = w.Append(nil, testBatch())
	_ = w.Append(nil, testBatch())

	s := &sink{}
	n, err := w.Drain(s)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 2 {
		t.Errorf("Drain delivered %d entries, want 2", n)
	}
	if s.counts != 4 || s.amounts != 2 || s.results != 2 {
		t.Errorf("sink got counts=%d amounts=%d results=%d", s.counts, s.amounts, s.results)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("file size after drain = %d, want 0", info.Size())
	}
}

func TestDrainKeepsFileOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "letters.jsonl")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()
	_ = w.Append(nil, testBatch())

	boom := errors.New("still down")
	if _, err := w.Drain(&sink{fail: boom}); !errors.Is(err, boom) {
		t.Fatalf("Drain err = %v, want %v", err, boom)
	}

	n := 0
	_ = Replay(path, func(Entry) error { n++; return nil })
	if n != 1 {
		t.Errorf("entries after failed drain = %d, want 1", n)
	}
}

func TestDrainKeepsOnlyUndeliveredPart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "letters.jsonl")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()
	_ = w.Append(nil, testBatch())
	_ = w.Append(nil, testBatch())

	locked := errors.New("amounts locked")
	s := &sink{failAmounts: locked}
	n, err := w.Drain(s)
	if !errors.Is(err, locked) {
		t.Fatalf("Drain err = %v, want %v", err, locked)
	}
	if n != 0 || s.counts != 2 {
		t.Fatalf("first drain: n=%d counts=%d, want 0 and 2", n, s.counts)
	}

	var left []Entry
	_ = Replay(path, func(e Entry) error { left = append(left, e); return nil })
	if len(left) != 2 {
		t.Fatalf("entries after partial drain = %d, want 2", len(left))
	}
	if len(left[0].Counts) != 0 || len(left[0].Amounts) != 1 || len(left[0].Results) != 1 {
		t.Errorf("remainder = %d counts, %d amounts, %d results", len(left[0].Counts), len(left[0].Amounts), len(left[0].Results))
	}
	if len(left[1].Counts) != 2 {
		t.Errorf("untouched entry lost its counts: %d", len(left[1].Counts))
	}

	s.failAmounts = nil
	n, err = w.Drain(s)
	if err != nil {
		t.Fatalf("second Drain: %v", err)
	}
	if n != 2 {
		t.Errorf("second drain delivered %d entries, want 2", n)
	}
	if s.counts != 4 || s.amounts != 2 || s.results != 2 {
		t.Errorf("sink got counts=%d amounts=%d results=%d, want 4/2/2", s.counts, s.amounts, s.results)
	}
}

func TestDrainKeepsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "letters.jsonl")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = w.Append(nil, testBatch())
	_ = w.Close()

	const garbage = "{not json}\n"
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = f.WriteString(garbage)
	_ = f.Close()

	w, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w.Close()
	_ = w.Append(nil, testBatch())

	s := &sink{}
	n, err := w.Drain(s)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 2 {
		t.Errorf("entries after the malformed line were not delivered: n=%d", n)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != garbage {
		t.Errorf("file after drain = %q, want only the malformed line", data)
	}
}

func TestOpenCutsPartialTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "letters.jsonl")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = w.Append(nil, testBatch())
	_ = w.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = f.WriteString(`{"seq":2,"reason":"trunc`)
	_ = f.Close()

	w, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w.Close()
	if err := w.Append(nil, testBatch()); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var seqs []uint64
	_ = Replay(path, func(e Entry) error { seqs = append(seqs, e.Seq); return nil })
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Errorf("seqs = %v, want [1 2]", seqs)
	}
}

func TestAppendAfterClose(t *testing.T) {
	w, err := Open(filepath.Join(t.TempDir(), "letters.jsonl"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = w.Close()
	if err := w.Append(nil, testBatch()); err == nil {
		t.Fatal("expected error appending after Close")
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
