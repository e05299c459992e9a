package socketrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/symposium/internal/model"
)

var (
	_ model.BoardController = (*Client)(nil)
	_ model.GameController  = (*Client)(nil)
	_ model.RunQuerier      = (*Client)(nil)
)

// Client implements the board, game and run interfaces over a Unix domain
// socket using JSON-RPC 2.0.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	nextID  int
	scanner *bufio.Scanner
	encoder *json.Encoder
}

// Dial connects to the socket RPC server at the given path.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	return &Client{
		conn:    conn,
		scanner: scanner,
		encoder: json.NewEncoder(conn),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call performs a JSON-RPC call and unmarshals the result into dest.
func (c *Client) call(method string, params interface{}, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID

	var paramsData json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("socketrpc: marshal params: %w", err)
		}
		paramsData = data
	}

	req := Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsData,
	}

	c.conn.SetDeadline(time.Now().Add(10 * time.Second))
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
	if resp.ID != id {
		return fmt.Errorf("socketrpc: response id %d for request %d", resp.ID, id)
	}
	if resp.Error != nil {
		return resp.Error.asError()
	}

	if dest != nil {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return fmt.Errorf("socketrpc: unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *Client) BoardSnapshot() (model.BoardSnapshot, error) {
	var result model.BoardSnapshot
	err := c.call("Board.Snapshot", nil, &result)
	return result, err
}

func (c *Client) BoardStart() error  { return c.call("Board.Start", nil, nil) }
func (c *Client) BoardPause() error  { return c.call("Board.Pause", nil, nil) }
func (c *Client) BoardToggle() error { return c.call("Board.Toggle", nil, nil) }
func (c *Client) BoardReset() error  { return c.call("Board.Reset", nil, nil) }

func (c *Client) BoardConfigure(settings model.BoardSettings) error {
	return c.call("Board.Configure", settings, nil)
}

func (c *Client) GameSnapshot() (model.GameSnapshot, error) {
	var result model.GameSnapshot
	err := c.call("Game.Snapshot", nil, &result)
	return result, err
}

func (c *Client) GameStart() error    { return c.call("Game.Start", nil, nil) }
func (c *Client) GamePause() error    { return c.call("Game.Pause", nil, nil) }
func (c *Client) GameResume() error   { return c.call("Game.Resume", nil, nil) }
func (c *Client) GameReset() error    { return c.call("Game.Reset", nil, nil) }
func (c *Client) GameDeselect() error { return c.call("Game.Deselect", nil, nil) }

func (c *Client) GameSelect(index int) error {
	return c.call("Game.Select", map[string]interface{}{"index": index}, nil)
}

func (c *Client) GameAction(action model.Action) error {
	return c.call("Game.Action", map[string]interface{}{"action": action}, nil)
}

func (c *Client) ListRuns(limit int) ([]model.RunSummary, error) {
	var result []model.RunSummary
	err := c.call("Runs.List", map[string]interface{}{"limit": limit}, &result)
	return result, err
}

func (c *Client) GetRun(id string) (model.RunSummary, error) {
	var result model.RunSummary
	err := c.call("Runs.Get", map[string]interface{}{"id": id}, &result)
	return result, err
}

func (c *Client) RunEvents(id string, limit int) ([]model.Event, error) {
	var result []model.Event
	err := c.call("Runs.Events", map[string]interface{}{"id": id, "limit": limit}, &result)
	return result, err
}

func (c *Client) MealCounts(id string) ([]model.MealCount, error) {
	var result []model.MealCount
	err := c.call("Runs.Meals", map[string]interface{}{"id": id}, &result)
	return result, err
}
