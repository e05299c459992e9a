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

	"github.com/tinytelemetry/symposium/internal/model"
)

const (
	// scannerInitBufSize is the initial buffer size for the per-connection scanner (64 KB).
	scannerInitBufSize = 64 * 1024
	// scannerMaxTokenSize is the maximum token size the scanner will accept (4 MB).
	scannerMaxTokenSize = 4 * 1024 * 1024
)

var errRunsDisabled = errors.New("socketrpc: run recording is disabled")

// Services are what the socket exposes. Runs may be nil.
type Services struct {
	Board model.BoardController
	Game  model.GameController
	Runs  model.RunQuerier
}

// Server exposes Services over a Unix domain socket using JSON-RPC 2.0.
type Server struct {
	socketPath string
	svc        Services
	listener   net.Listener
	wg         sync.WaitGroup
	quit       chan struct{}
}

// NewServer creates a new socket RPC server.
func NewServer(socketPath string, svc Services) *Server {
	return &Server{
		socketPath: socketPath,
		svc:        svc,
		quit:       make(chan struct{}),
	}
}

// Start begins listening on the Unix socket and accepting connections.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("socketrpc: mkdir: %w", err)
	}

	// Remove stale socket if it exists.
	if _, err := os.Stat(s.socketPath); err == nil {
		conn, dialErr := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
		if dialErr != nil {
			os.Remove(s.socketPath)
		} else {
			conn.Close()
			return fmt.Errorf("socketrpc: another server is already listening on %s", s.socketPath)
		}
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

// Stop closes the listener, waits for connections to drain, and removes the socket file.
func (s *Server) Stop() {
	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
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
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblock the scanner when the server stops.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.quit:
			conn.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp := Response{JSONRPC: "2.0", ID: 0, Error: &RPCError{Code: CodeParseError, Message: "parse error"}}
			encoder.Encode(resp)
			continue
		}

		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			return
		}
	}
}

// decodeParams accepts empty or null params when optional is set.
func decodeParams(raw json.RawMessage, dest interface{}, optional bool) error {
	if len(raw) == 0 || string(raw) == "null" {
		if optional {
			return nil
		}
		return errors.New("params are required")
	}
	return json.Unmarshal(raw, dest)
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	marshalResult := func(v interface{}, err error) Response {
		if err != nil {
			resp.Error = &RPCError{Code: CodeApplication, Message: err.Error(), Data: categoryOf(err)}
			return resp
		}
		data, merr := json.Marshal(v)
		if merr != nil {
			resp.Error = &RPCError{Code: CodeInternal, Message: merr.Error()}
			return resp
		}
		resp.Result = data
		return resp
	}

	invalidParams := func(err error) Response {
		resp.Error = &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
		return resp
	}

	board := func(cmd func() error) Response {
		if err := cmd(); err != nil {
			return marshalResult(nil, err)
		}
		return marshalResult(s.svc.Board.BoardSnapshot())
	}
	game := func(cmd func() error) Response {
		if err := cmd(); err != nil {
			return marshalResult(nil, err)
		}
		return marshalResult(s.svc.Game.GameSnapshot())
	}
	runs := func(call func(model.RunQuerier) (interface{}, error)) Response {
		if s.svc.Runs == nil {
			return marshalResult(nil, errRunsDisabled)
		}
		return marshalResult(call(s.svc.Runs))
	}

	switch req.Method {
	case "Board.Snapshot":
		return marshalResult(s.svc.Board.BoardSnapshot())
	case "Board.Start":
		return board(s.svc.Board.BoardStart)
	case "Board.Pause":
		return board(s.svc.Board.BoardPause)
	case "Board.Toggle":
		return board(s.svc.Board.BoardToggle)
	case "Board.Reset":
		return board(s.svc.Board.BoardReset)
	case "Board.Configure":
		var p model.BoardSettings
		if err := decodeParams(req.Params, &p, false); err != nil {
			return invalidParams(err)
		}
		return board(func() error { return s.svc.Board.BoardConfigure(p) })

	case "Game.Snapshot":
		return marshalResult(s.svc.Game.GameSnapshot())
	case "Game.Start":
		return game(s.svc.Game.GameStart)
	case "Game.Pause":
		return game(s.svc.Game.GamePause)
	case "Game.Resume":
		return game(s.svc.Game.GameResume)
	case "Game.Reset":
		return game(s.svc.Game.GameReset)
	case "Game.Deselect":
		return game(s.svc.Game.GameDeselect)
	case "Game.Select":
		var p struct {
			Index *int `json:"index"`
		}
		if err := decodeParams(req.Params, &p, false); err != nil {
			return invalidParams(err)
		}
		if p.Index == nil {
			return invalidParams(errors.New("index is required"))
		}
		return game(func() error { return s.svc.Game.GameSelect(*p.Index) })
	case "Game.Action":
		var p struct {
			Action string `json:"action"`
		}
		if err := decodeParams(req.Params, &p, false); err != nil {
			return invalidParams(err)
		}
		action, err := model.ParseAction(p.Action)
		if err != nil {
			return invalidParams(err)
		}
		return game(func() error { return s.svc.Game.GameAction(action) })

	case "Runs.List":
		var p struct {
			Limit int `json:"limit"`
		}
		if err := decodeParams(req.Params, &p, true); err != nil {
			return invalidParams(err)
		}
		return runs(func(q model.RunQuerier) (interface{}, error) { return q.ListRuns(p.Limit) })
	case "Runs.Get", "Runs.Events", "Runs.Meals":
		var p struct {
			ID    string `json:"id"`
			Limit int    `json:"limit"`
		}
		if err := decodeParams(req.Params, &p, false); err != nil {
			return invalidParams(err)
		}
		if p.ID == "" {
			return invalidParams(errors.New("id is required"))
		}
		return runs(func(q model.RunQuerier) (interface{}, error) {
			switch req.Method {
			case "Runs.Get":
				return q.GetRun(p.ID)
			case "Runs.Events":
				return q.RunEvents(p.ID, p.Limit)
			default:
				return q.MealCounts(p.ID)
			}
		})

	default:
		resp.Error = &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
		return resp
	}
}
