// Package socketrpc exposes stored totals and engine state to local tools
// over a Unix domain socket.
package socketrpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tinytelemetry/spool/internal/engine"
	"github.com/tinytelemetry/spool/internal/model"
)

const (
	scannerInitBufSize  = 64 * 1024
	scannerMaxTokenSize = 4 * 1024 * 1024
)

// ErrNoEngine is returned for EngineStats when the server has no engine.
var ErrNoEngine = errors.New("engine stats not available")

type handler func(params json.RawMessage) (any, error)

// Server answers JSON-RPC requests on a Unix socket.
type Server struct {
	socketPath string
	totals     model.TotalsReader
	stats      func() engine.Stats
	methods    map[string]handler

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	stopOnce sync.Once
}

// NewServer creates a server for totals. stats may be nil.
func NewServer(socketPath string, totals model.TotalsReader, stats func() engine.Stats) *Server {
	s := &Server{
		socketPath: socketPath,
		totals:     totals,
		stats:      stats,
		quit:       make(chan struct{}),
	}
	s.methods = map[string]handler{
		"Totals":         s.handleTotals,
		"TableRowCounts": s.handleRowCounts,
		"EngineStats":    s.handleEngineStats,
	}
	return s
}

// Start removes a stale socket, listens and accepts in the background.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("socketrpc: mkdir: %w", err)
	}

	if _, err := os.Stat(s.socketPath); err == nil {
		conn, dialErr := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
		if dialErr == nil {
			conn.Close()
			return fmt.Errorf("socketrpc: another server is already listening on %s", s.socketPath)
		}
		os.Remove(s.socketPath)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("socketrpc: listen: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()

	log.Printf("socketrpc: listening on %s", s.socketPath)
	return nil
}

// Stop closes the listener, waits for open connections and removes the
// socket file.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		os.Remove(s.socketPath)
	})
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				log.Printf("socketrpc: accept error: %v", err)
				continue
			}
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-s.quit:
			conn.SetReadDeadline(time.Now())
		case <-closed:
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		var req Request
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp = Response{JSONRPC: "2.0", Error: &RPCError{Code: codeParse, Message: "parse error"}}
		} else {
			resp = s.dispatch(req)
		}
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	h, ok := s.methods[req.Method]
	if !ok {
		resp.Error = &RPCError{Code: codeMethodNotFound, Message: "method not found: " + req.Method}
		return resp
	}

	result, err := h(req.Params)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			resp.Error = rpcErr
		} else {
			resp.Error = &RPCError{Code: codeApplication, Message: err.Error()}
		}
		return resp
	}

	data, err := json.Marshal(result)
	if err != nil {
		resp.Error = &RPCError{Code: codeInternal, Message: err.Error()}
		return resp
	}
	resp.Result = data
	return resp
}

// decodeParams accepts empty or null params as the zero value.
func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

func (s *Server) handleTotals(raw json.RawMessage) (any, error) {
	var p struct{ Opts model.QueryOpts }
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	totals, err := s.totals.Totals(p.Opts)
	if err != nil {
		return nil, err
	}
	if totals == nil {
		totals = []model.MetricTotal{}
	}
	return totals, nil
}

func (s *Server) handleRowCounts(json.RawMessage) (any, error) {
	return s.totals.TableRowCounts()
}

func (s *Server) handleEngineStats(json.RawMessage) (any, error) {
	if s.stats == nil {
		return nil, ErrNoEngine
	}
	return s.stats(), nil
}
