package socketrpc

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/tinytelemetry/symposium/internal/model"
)

// JSON-RPC 2.0 Method Reference
//
//   Method            Params                                Result
//   ──────────────    ───────────────────────────────────   ──────────────────
//   Board.Snapshot    (none)                                BoardSnapshot
//   Board.Start       (none)                                BoardSnapshot
//   Board.Pause       (none)                                BoardSnapshot
//   Board.Toggle      (none)                                BoardSnapshot
//   Board.Reset       (none)                                BoardSnapshot
//   Board.Configure   {philosophers: int, speed: float}     BoardSnapshot
//   Game.Snapshot     (none)                                GameSnapshot
//   Game.Start        (none)                                GameSnapshot
//   Game.Pause        (none)                                GameSnapshot
//   Game.Resume       (none)                                GameSnapshot
//   Game.Reset        (none)                                GameSnapshot
//   Game.Select       {index: int}                          GameSnapshot
//   Game.Deselect     (none)                                GameSnapshot
//   Game.Action       {action: string}                      GameSnapshot
//   Runs.List         {limit: int}                          []RunSummary
//   Runs.Get          {id: string}                          RunSummary
//   Runs.Events       {id: string, limit: int}              []Event
//   Runs.Meals        {id: string}                          []MealCount
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params
//   -32603  Internal error (marshal failure)
//   -32000  Application error; data names the category
//           (invalid_argument, not_found, rejected) when there is one

const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodeApplication    = -32000
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

var categories = []struct {
	name string
	err  error
}{
	{"invalid_argument", model.ErrInvalidArgument},
	{"not_found", model.ErrNotFound},
	{"rejected", model.ErrRejected},
}

func categoryOf(err error) string {
	for _, c := range categories {
		if errors.Is(err, c.err) {
			return c.name
		}
	}
	return ""
}

// asError turns a wire error back into a Go error carrying its category.
func (e *RPCError) asError() error {
	for _, c := range categories {
		if c.name == e.Data {
			return model.Tag(c.err, e)
		}
	}
	if e.Code == CodeInvalidParams {
		return model.Tag(model.ErrInvalidArgument, e)
	}
	return e
}

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/symposium/symposium.sock, falling back to
// ~/.local/state/symposium/symposium.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "symposium", "symposium.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/symposium.sock"
	}
	return filepath.Join(home, ".local", "state", "symposium", "symposium.sock")
}
