// Package linesource turns a byte stream into a channel of command lines.
package linesource

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"os"

	"github.com/tinytelemetry/spool/internal/model"
)

const (
	// DefaultBuffer is the channel capacity between the reader and consumer.
	DefaultBuffer = 4096

	// DefaultMaxLineSize is the longest line accepted, in bytes.
	DefaultMaxLineSize = 64 * 1024
)

// Source yields non-empty lines until its input ends or it is stopped.
type Source interface {
	Lines() <-chan model.IngestEnvelope
	Stop()
	Name() string
}

// Config tunes a reader source.
type Config struct {
	BufferSize  int
	MaxLineSize int
}

// ReaderSource reads lines from an io.Reader in a background goroutine.
type ReaderSource struct {
	name   string
	ch     chan model.IngestEnvelope
	cancel context.CancelFunc
}

var _ Source = (*ReaderSource)(nil)

// NewStdin reads from os.Stdin.
func NewStdin(ctx context.Context, conf Config) *ReaderSource {
	return NewReader(ctx, "stdin", os.Stdin, conf)
}

// NewReader reads from r. The Lines channel is closed at EOF, on a read
// error or after Stop.
func NewReader(ctx context.Context, name string, r io.Reader, conf Config) *ReaderSource {
	if conf.BufferSize <= 0 {
		conf.BufferSize = DefaultBuffer
	}
	if conf.MaxLineSize <= 0 {
		conf.MaxLineSize = DefaultMaxLineSize
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &ReaderSource{
		name:   name,
		ch:     make(chan model.IngestEnvelope, conf.BufferSize),
		cancel: cancel,
	}
	go s.read(ctx, r, conf.MaxLineSize)
	return s
}

func (s *ReaderSource) read(ctx context.Context, r io.Reader, maxLineSize int) {
	defer close(s.ch)

	// Scan blocks on the reader, so it runs on its own goroutine and the
	// forwarding loop below is what observes cancellation.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				log.Printf("linesource: %s line exceeded %d bytes, stopping", s.name, maxLineSize)
				return
			}
			log.Printf("linesource: %s read error: %v", s.name, err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			select {
			case s.ch <- model.IngestEnvelope{Source: s.name, Line: line}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *ReaderSource) Lines() <-chan model.IngestEnvelope { return s.ch }
func (s *ReaderSource) Stop()                              { s.cancel() }
func (s *ReaderSource) Name() string                       { return s.name }
