package socketrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/spool/internal/engine"
	"github.com/tinytelemetry/spool/internal/model"
)

// Client is a model.TotalsReader backed by a running sidecar.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	nextID  int
	timeout time.Duration
	scanner *bufio.Scanner
	encoder *json.Encoder
}

var _ model.TotalsReader = (*Client)(nil)

// Dial connects to the server at socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	return &Client{
		conn:    conn,
		timeout: 30 * time.Second,
		scanner: scanner,
		encoder: json.NewEncoder(conn),
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(method string, params any, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req := Request{JSONRPC: "2.0", ID: c.nextID, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("socketrpc: marshal params: %w", err)
		}
		req.Params = data
	}

	c.conn.SetDeadline(time.Now().Add(c.timeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("socketrpc: send: %w", err)
	}
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return fmt.Errorf("socketrpc: read: %w", err)
		}
		return fmt.Errorf("socketrpc: connection closed")
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("socketrpc: unmarshal response: %w", err)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("socketrpc: response id %d does not match request %d", resp.ID, req.ID)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if dest != nil {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return fmt.Errorf("socketrpc: unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *Client) Totals(opts model.QueryOpts) ([]model.MetricTotal, error) {
	var result []model.MetricTotal
	err := c.call("Totals", map[string]any{"Opts": opts}, &result)
	return result, err
}

func (c *Client) TableRowCounts() (map[string]int64, error) {
	var result map[string]int64
	err := c.call("TableRowCounts", nil, &result)
	return result, err
}

// EngineStats returns the sidecar engine's live state.
func (c *Client) EngineStats() (engine.Stats, error) {
	var result engine.Stats
	err := c.call("EngineStats", nil, &result)
	return result, err
}
