package socketrpc_test

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinytelemetry/spool/internal/engine"
	"github.com/tinytelemetry/spool/internal/model"
	"github.com/tinytelemetry/spool/internal/socketrpc"
)

type mockTotals struct{}

func (mockTotals) Totals(opts model.QueryOpts) ([]model.MetricTotal, error) {
	all := []model.MetricTotal{
		{Kind: "count", Metric: "requests", Events: 3, Value: 3, LastSeen: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)},
		{Kind: "amount", Metric: "bytes", Events: 2, Value: 640},
	}
	if opts.Kind == "" {
		return all, nil
	}
	var out []model.MetricTotal
	for _, t := range all {
		if t.Kind == opts.Kind {
			out = append(out, t)
		}
	}
	return out, nil
}

func (mockTotals) TableRowCounts() (map[string]int64, error) {
	return map[string]int64{"count_events": 3, "amount_events": 2}, nil
}

func startTestServer(t *testing.T) (string, *socketrpc.Server) {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "test.sock")
	srv := socketrpc.NewServer(sockPath, mockTotals{}, func() engine.Stats {
		return engine.Stats{Strategy: "hybrid(limit=10, interval=1s)", Flushes: 9, Buffered: map[string]int{"count": 1}}
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	return sockPath, srv
}

func TestRoundtrip(t *testing.T) {
	sockPath, srv := startTestServer(t)
	defer srv.Stop()

	c, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	totals, err := c.Totals(model.QueryOpts{})
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("Totals = %d rows, want 2", len(totals))
	}
	if !totals[0].LastSeen.Equal(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("LastSeen = %v", totals[0].LastSeen)
	}

	filtered, err := c.Totals(model.QueryOpts{Kind: "amount"})
	if err != nil {
		t.Fatalf("Totals(amount): %v", err)
	}
	if len(filtered) != 1 || filtered[0].Value != 640 {
		t.Errorf("Totals(amount) = %+v", filtered)
	}

	counts, err := c.TableRowCounts()
	if err != nil {
		t.Fatalf("TableRowCounts: %v", err)
	}
	if counts["count_events"] != 3 {
		t.Errorf("count_events = %d, want 3", counts["count_events"])
	}

	stats, err := c.EngineStats()
	if err != nil {
		t.Fatalf("EngineStats: %v", err)
	}
	if stats.Flushes != 9 || stats.Buffered["count"] != 1 {
		t.Errorf("EngineStats = %+v", stats)
	}
}

func TestSecondServerRefusesLiveSocket(t *testing.T) {
	sockPath, srv := startTestServer(t)
	defer srv.Stop()

	other := socketrpc.NewServer(sockPath, mockTotals{}, nil)
	if err := other.Start(); err == nil {
		other.Stop()
		t.Fatal("expected second Start on a live socket to fail")
	}
}

func TestStartReplacesStaleSocket(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "stale.sock")
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	// Close without unlinking leaves a dead socket file behind.
	if ul, ok := ln.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(false)
	}
	ln.Close()

	srv := socketrpc.NewServer(sockPath, mockTotals{}, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start over stale socket: %v", err)
	}
	srv.Stop()
	srv.Stop()
}

func TestClientErrorAfterStop(t *testing.T) {
	sockPath, srv := startTestServer(t)

	c, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	srv.Stop()
	if _, err := c.Totals(model.QueryOpts{}); err == nil {
		t.Fatal("expected error calling a stopped server")
	}
}
