package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBuildInputPlugins_RegistersPrimitives(t *testing.T) {
	t.Parallel()

	plugins := buildInputPlugins(InputPluginConfig{CommandFile: "/tmp/commands.jsonl"})

	if len(plugins) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(plugins))
	}
	if plugins[0].Name() != "file" {
		t.Fatalf("plugins[0] name = %q, want %q", plugins[0].Name(), "file")
	}
	if plugins[1].Name() != "stdin" {
		t.Fatalf("plugins[1] name = %q, want %q", plugins[1].Name(), "stdin")
	}
	if !plugins[0].Enabled() {
		t.Fatal("expected file plugin to be enabled when a command file is set")
	}
}

func TestBuildInputPlugins_FileDisabled(t *testing.T) {
	t.Parallel()

	plugins := buildInputPlugins(InputPluginConfig{})
	if plugins[0].Enabled() {
		t.Fatal("expected file plugin to be disabled without a command file")
	}
}

func TestFileInputPlugin_ReadsLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "commands.jsonl")
	content := "{\"op\":\"count\",\"metric\":\"a\"}\n\n{\"op\":\"amount\",\"metric\":\"b\",\"value\":3}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write commands: %v", err)
	}

	src, err := fileInputPlugin{path: path}.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer src.Stop()

	var lines []string
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case env, ok := <-src.Lines():
			if !ok {
				done = true
				continue
			}
			lines = append(lines, env.Line)
		case <-timeout:
			t.Fatalf("timed out, got %v", lines)
		}
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %v", len(lines), lines)
	}
}

func TestFileInputPlugin_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := fileInputPlugin{path: filepath.Join(t.TempDir(), "missing")}.Build(context.Background())
	if err == nil {
		t.Fatal("expected error for missing command file")
	}
}
