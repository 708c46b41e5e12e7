package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tinytelemetry/spool/internal/linesource"
)

// InputSourcePlugin builds one command source when enabled.
type InputSourcePlugin interface {
	Name() string
	Enabled() bool
	Build(ctx context.Context) (linesource.Source, error)
}

// InputPluginConfig selects the command inputs.
type InputPluginConfig struct {
	CommandFile string
}

func buildInputPlugins(cfg InputPluginConfig) []InputSourcePlugin {
	return []InputSourcePlugin{
		fileInputPlugin{path: cfg.CommandFile},
		stdinInputPlugin{},
	}
}

// fileInputPlugin reads commands from a file or named pipe.
type fileInputPlugin struct {
	path string
}

func (p fileInputPlugin) Name() string  { return "file" }
func (p fileInputPlugin) Enabled() bool { return p.path != "" }

func (p fileInputPlugin) Build(ctx context.Context) (linesource.Source, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("open command file: %w", err)
	}
	src := linesource.NewReader(ctx, p.path, f, linesource.Config{})
	return &closingSource{ReaderSource: src, closer: f}, nil
}

// closingSource closes the underlying file once the source is stopped.
type closingSource struct {
	*linesource.ReaderSource
	closer    io.Closer
	closeOnce sync.Once
}

func (s *closingSource) Stop() {
	s.ReaderSource.Stop()
	s.closeOnce.Do(func() { s.closer.Close() })
}

type stdinInputPlugin struct{}

func (p stdinInputPlugin) Name() string { return "stdin" }

// Enabled reports whether stdin is piped rather than a terminal.
func (p stdinInputPlugin) Enabled() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice == 0
}

func (p stdinInputPlugin) Build(ctx context.Context) (linesource.Source, error) {
	return linesource.NewStdin(ctx, linesource.Config{}), nil
}
