// Package deadletter keeps batches that a faulted flush could not deliver.
//
// Each batch is one JSON line, fsynced on append. The file is only read back
// by Replay and Drain. A partially written trailing line is ignored and cut
// off on the next Open; a malformed line in the middle is logged, skipped and
// kept in the file.
package deadletter

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/spool/internal/model"
)

const (
	fileMode = 0644
	dirMode  = 0755
)

// Entry is one undeliverable batch.
type Entry struct {
	Seq       uint64                 `json:"seq"`
	At        time.Time              `json:"at"`
	Reason    string                 `json:"reason"`
	Counts    []model.CountEvent     `json:"counts,omitempty"`
	Amounts   []model.AmountEvent    `json:"amounts,omitempty"`
	Statuses  []model.StatusEvent    `json:"statuses,omitempty"`
	Intervals []model.IntervalEvent  `json:"intervals,omitempty"`
	Results   []model.IntervalResult `json:"results,omitempty"`
}

// Len is the number of raw events in the entry.
func (e *Entry) Len() int {
	return len(e.Counts) + len(e.Amounts) + len(e.Statuses) + len(e.Intervals)
}

// Deliver hands the entry's events to c. Interval results are delivered
// only if matching had produced them before the batch was lost. On failure
// it returns the part of the entry c has not accepted.
func (e *Entry) Deliver(c model.Consumer) (*Entry, error) {
	rest := *e
	if err := c.ProcessCountEvents(e.Counts); err != nil {
		return &rest, err
	}
	rest.Counts = nil
	if err := c.ProcessAmountEvents(e.Amounts); err != nil {
		return &rest, err
	}
	rest.Amounts = nil
	if err := c.ProcessStatusEvents(e.Statuses); err != nil {
		return &rest, err
	}
	rest.Statuses = nil
	if err := c.ProcessIntervalEvents(e.Results); err != nil {
		return &rest, err
	}
	return nil, nil
}

// Writer appends entries to a dead-letter file.
type Writer struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	nextSeq uint64
	now     func() time.Time
}

// Open creates or opens the dead-letter file at path.
func Open(path string) (*Writer, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("deadletter: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, fmt.Errorf("deadletter: mkdir: %w", err)
	}

	var last uint64
	end, err := scan(path, func(r record) error {
		if r.ok {
			last = r.entry.Seq
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fileMode)
	if err != nil {
		return nil, fmt.Errorf("deadletter: open: %w", err)
	}
	// Appending after a torn line would glue the next entry onto it.
	if info, err := f.Stat(); err == nil && info.Size() > end {
		log.Printf("deadletter: %s: dropping %d bytes of partial entry at offset %d", path, info.Size()-end, end)
		if err := f.Truncate(end); err != nil {
			f.Close()
			return nil, fmt.Errorf("deadletter: truncate partial entry: %w", err)
		}
	}
	return &Writer{path: path, file: f, nextSeq: last + 1, now: time.Now}, nil
}

// Path returns the file being written.
func (w *Writer) Path() string { return w.path }

// Append persists batch with the failure that lost it.
func (w *Writer) Append(reason error, batch *model.Batch) error {
	if batch == nil {
		return errors.New("deadletter: nil batch")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return errors.New("deadletter: writer closed")
	}

	e := Entry{
		Seq:       w.nextSeq,
		At:        w.now().UTC(),
		Counts:    batch.Counts,
		Amounts:   batch.Amounts,
		Statuses:  batch.Statuses,
		Intervals: batch.Intervals,
		Results:   batch.Results,
	}
	if reason != nil {
		e.Reason = reason.Error()
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("deadletter: marshal: %w", err)
	}
	line = append(line, '\n')

	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("deadletter: write: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("deadletter: sync: %w", err)
	}
	w.nextSeq++
	return nil
}

// Drain redelivers stored entries to c in order and returns how many were
// fully accepted. It stops at the first failure. Whatever was not accepted
// stays in the file: the unaccepted part of the failing entry, every entry
// after it and any malformed lines. The file is empty only when everything
// was delivered.
func (w *Writer) Drain(c model.Consumer) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return 0, errors.New("deadletter: writer closed")
	}

	var (
		n       int
		keep    [][]byte
		failure error
	)
	_, err := scan(w.path, func(r record) error {
		if !r.ok || failure != nil {
			keep = append(keep, r.raw)
			return nil
		}
		rest, err := r.entry.Deliver(c)
		if err != nil {
			failure = fmt.Errorf("deadletter: redeliver seq=%d: %w", r.entry.Seq, err)
			line, merr := json.Marshal(rest)
			if merr != nil {
				return fmt.Errorf("deadletter: marshal: %w", merr)
			}
			keep = append(keep, append(line, '\n'))
			return nil
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	if err := w.rewrite(keep); err != nil {
		return n, err
	}
	return n, failure
}

// rewrite replaces the file contents with lines. Called with mu held.
func (w *Writer) rewrite(lines [][]byte) error {
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("deadletter: truncate: %w", err)
	}
	for _, line := range lines {
		if _, err := w.file.Write(line); err != nil {
			return fmt.Errorf("deadletter: write: %w", err)
		}
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("deadletter: sync: %w", err)
	}
	return nil
}

// Close closes the file. Further appends fail.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Replay calls fn for each complete entry in path, in file order. It stops
// at a partial trailing line. Malformed lines are logged and skipped.
func Replay(path string, fn func(Entry) error) error {
	_, err := scan(path, func(r record) error {
		if !r.ok {
			return nil
		}
		return fn(r.entry)
	})
	return err
}

// record is one complete line of the file.
type record struct {
	offset int64
	raw    []byte
	entry  Entry
	ok     bool
}

// scan calls fn for every newline-terminated line and returns the offset just
// past the last one.
func scan(path string, fn func(record) error) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("deadletter: open for replay: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var offset int64
	for {
		line, err := r.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return offset, fmt.Errorf("deadletter: read: %w", err)
		}
		if len(line) == 0 || line[len(line)-1] != '\n' {
			return offset, nil
		}

		rec := record{offset: offset, raw: line}
		if uerr := json.Unmarshal(line, &rec.entry); uerr != nil {
			log.Printf("deadletter: %s: skipping malformed entry at offset %d: %v", path, offset, uerr)
		} else {
			rec.ok = true
		}
		if ferr := fn(rec); ferr != nil {
			return offset, ferr
		}
		offset += int64(len(line))
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
	}
}
