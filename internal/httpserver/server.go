// Package httpserver serves stored totals, engine health and Prometheus
// metrics over HTTP.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinytelemetry/spool/internal/engine"
	"github.com/tinytelemetry/spool/internal/model"
)

// StatsSource reports live engine state.
type StatsSource interface {
	Stats() engine.Stats
}

// Server is the sidecar HTTP API.
type Server struct {
	addr      string
	totals    model.TotalsReader
	engine    StatsSource
	gatherer  prometheus.Gatherer
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates the API server. A nil gatherer disables /metrics.
func NewServer(addr string, totals model.TotalsReader, eng StatsSource, gatherer prometheus.Gatherer) *Server {
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		totals:    totals,
		engine:    eng,
		gatherer:  gatherer,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Handler builds the gin router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/totals", s.handleTotals)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	counts, err := s.totals.TableRowCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read table row counts"})
		return
	}

	body := gin.H{
		"status":     "ok",
		"uptime":     time.Since(s.startTime).String(),
		"row_counts": counts,
	}
	if s.engine != nil {
		st := s.engine.Stats()
		body["engine"] = gin.H{
			"strategy": st.Strategy,
			"mode":     st.Mode,
			"flushes":  st.Flushes,
			"faulted":  st.Faulted,
			"stopped":  st.Stopped,
			"buffered": st.Buffered,
		}
		if st.Faulted {
			body["status"] = "faulted"
		}
	}
	c.JSON(http.StatusOK, body)
}

type totalJSON struct {
	Kind     string    `json:"kind"`
	Metric   string    `json:"metric"`
	Events   int64     `json:"events"`
	Value    int64     `json:"value"`
	LastSeen time.Time `json:"last_seen"`
}

func (s *Server) handleTotals(c *gin.Context) {
	opts := model.QueryOpts{Kind: c.Query("kind"), Metric: c.Query("metric")}
	if opts.Kind != "" {
		if _, ok := model.ParseKind(opts.Kind); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown kind " + opts.Kind})
			return
		}
	}

	totals, err := s.totals.Totals(opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read totals"})
		return
	}

	rows := make([]totalJSON, 0, len(totals))
	for _, t := range totals {
		rows = append(rows, totalJSON(t))
	}
	c.JSON(http.StatusOK, gin.H{"totals": rows, "count": len(rows)})
}
