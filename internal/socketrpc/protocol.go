package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Methods served over the socket, one JSON-RPC 2.0 request per line:
//
//	Totals          {Opts: QueryOpts}   []MetricTotal
//	TableRowCounts  (none)              map[string]int64
//	EngineStats     (none)              engine.Stats
//
// Error codes:
//
//	-32700  parse error
//	-32601  method not found
//	-32602  invalid params
//	-32603  internal error
//	-32000  query failure
const (
	codeParse          = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeApplication    = -32000
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// DefaultSocketPath prefers $XDG_RUNTIME_DIR/spool/spool.sock and falls
// back to ~/.local/state/spool/spool.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "spool", "spool.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "spool.sock")
	}
	return filepath.Join(home, ".local", "state", "spool", "spool.sock")
}
