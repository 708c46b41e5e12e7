package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/spool/internal/deadletter"
	"github.com/tinytelemetry/spool/internal/duckdb"
	"github.com/tinytelemetry/spool/internal/engine"
	"github.com/tinytelemetry/spool/internal/httpserver"
	"github.com/tinytelemetry/spool/internal/ingest"
	"github.com/tinytelemetry/spool/internal/linesource"
	"github.com/tinytelemetry/spool/internal/socketrpc"
)

// runServer wires the engine to DuckDB, serves totals and applies commands
// from the configured inputs until they close or a signal arrives.
func runServer(cfg appConfig) error {
	if err := configureLogger(cfg.LogLevel); err != nil {
		return err
	}

	engCfg, err := cfg.engineConfig()
	if err != nil {
		return err
	}

	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()
	store.IntervalUnit = engCfg.Unit.String()

	var opts []engine.Option

	if cfg.DeadLetterPath != "" {
		dl, err := deadletter.Open(cfg.DeadLetterPath)
		if err != nil {
			return fmt.Errorf("failed to open dead letter file: %w", err)
		}
		defer dl.Close()
		if n, err := dl.Drain(store); err != nil {
			log.Printf("server: dead letter redelivery stopped after %d batches: %v", n, err)
		} else if n > 0 {
			log.Printf("server: redelivered %d dead letter batches", n)
		}
		opts = append(opts, engine.WithDeadLetter(dl))
	}

	retention := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{RetentionDays: cfg.RetentionDays})
	if retention != nil {
		defer retention.Stop()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := engine.NewMetrics(reg, cfg.MetricsNamespace)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	opts = append(opts, engine.WithMetrics(metrics))

	eng, err := engine.New(store, engCfg, opts...)
	if err != nil {
		return err
	}
	if err := eng.Start(); err != nil {
		return err
	}
	engineStopped := false
	stopEngine := func() error {
		if engineStopped {
			return nil
		}
		engineStopped = true
		return eng.Stop(true)
	}
	defer stopEngine()

	if cfg.APIEnabled {
		api := httpserver.NewServer(cfg.APIAddr, store, eng, reg)
		if err := api.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer api.Stop()
	}

	sock := socketrpc.NewServer(cfg.SocketPath, store, eng.Stats)
	if err := sock.Start(); err != nil {
		log.Printf("server: socket server not started: %v", err)
	} else {
		defer sock.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		log.Printf("server: shutting down, flushing buffered events (signal again to force)")
		cancel()

		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()
		select {
		case <-sigCh:
			log.Printf("server: forced shutdown")
		case <-deadline.C:
			log.Printf("server: shutdown timed out")
		}
		os.Remove(cfg.SocketPath)
		os.Exit(1)
	}()

	var sources []linesource.Source
	for _, plugin := range buildInputPlugins(InputPluginConfig{CommandFile: cfg.CommandFile}) {
		if !plugin.Enabled() {
			continue
		}
		src, err := plugin.Build(ctx)
		if err != nil {
			log.Printf("server: input %q not started: %v", plugin.Name(), err)
			continue
		}
		sources = append(sources, src)
	}

	mux := NewSourceMultiplexer(ctx, sources, cfg.MuxBufferSize)
	mux.Start()
	defer mux.Stop()

	printStartupBanner(cfg, engCfg, mux.Names())

	processor := ingest.NewProcessor(eng)
	g, gctx := errgroup.WithContext(ctx)

	if mux.HasSources() {
		g.Go(func() error {
			err := processor.Run(gctx, mux)
			// All inputs closed: the application we front has gone away.
			cancel()
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	runErr := g.Wait()
	mux.Stop()

	stopErr := stopEngine()
	log.Printf("server: applied %d commands, rejected %d, %d flushes",
		processor.Applied(), processor.Rejected(), eng.Stats().Flushes)

	return errors.Join(runErr, stopErr)
}

func printStartupBanner(cfg appConfig, engCfg engine.Config, inputs []string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	bold := lipgloss.NewStyle().Bold(true)

	on := green.Render("●")
	off := dim.Render("●")
	row := func(mark, label, value string) string {
		return fmt.Sprintf("    %s  %-14s %s", mark, label, value)
	}

	lines := []string{
		"",
		cyan.Bold(true).Render("    spool") + " " + dim.Render("v"+version),
		dim.Render("    ─────────────────────────────────"),
		"",
		bold.Render("    Engine"),
		row(on, "Strategy", cyan.Render(engCfg.Strategy.String())),
		row(on, "Unit", dim.Render(engCfg.Unit.String())),
	}
	if engCfg.Checking {
		lines = append(lines, row(on, "Checking", dim.Render("on")))
	} else {
		lines = append(lines, row(off, "Checking", dim.Render("off")))
	}

	lines = append(lines, "", bold.Render("    Inputs"))
	if len(inputs) == 0 {
		lines = append(lines, row(off, "Commands", dim.Render("none (serving queries only)")))
	} else {
		lines = append(lines, row(on, "Commands", cyan.Render(strings.Join(inputs, ", "))))
	}

	lines = append(lines, "", bold.Render("    Serving"))
	if cfg.APIEnabled {
		lines = append(lines, row(on, "HTTP API", cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, row(off, "HTTP API", dim.Render("disabled")))
	}
	lines = append(lines, row(on, "Unix Socket", cyan.Render(shortenPath(cfg.SocketPath))))

	lines = append(lines, "", bold.Render("    Storage"))
	lines = append(lines, row(on, "DuckDB", dim.Render(shortenPath(cfg.DBPath))))
	if cfg.DeadLetterPath != "" {
		lines = append(lines, row(on, "Dead Letter", dim.Render(shortenPath(cfg.DeadLetterPath))))
	} else {
		lines = append(lines, row(off, "Dead Letter", dim.Render("disabled")))
	}
	if cfg.RetentionDays > 0 {
		lines = append(lines, row(on, "Retention", dim.Render(fmt.Sprintf("%d days", cfg.RetentionDays))))
	} else {
		lines = append(lines, row(off, "Retention", dim.Render("keep forever")))
	}
	lines = append(lines, "")

	fmt.Fprintln(os.Stderr, strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
