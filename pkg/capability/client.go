// Package capability manages connections to external tool providers. Each
// client owns exactly one transport (a spawned subprocess speaking JSON-RPC
// over stdio, or a persistent websocket connection), discovers the tools the
// server exposes during the handshake, and forwards invocation requests.
package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State describes the connection lifecycle of a client
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type transport interface {
	start() error
	write(data []byte) error
	read() ([]byte, error)
	close() error
}

// Config holds client configuration shared by both transports
type Config struct {
	Name           string
	Filter         *ToolFilter
	StartupTimeout time.Duration
	CallTimeout    time.Duration
	Logger         zerolog.Logger

	// OnInvoke, when set, observes every remote tool call after it completes
	OnInvoke func(tool string, err error)
}

// Client manages one capability server connection. Connect must succeed
// before Tools or Invoke are used; Close is idempotent and safe on every
// exit path.
type Client struct {
	name           string
	transport      transport
	filter         *ToolFilter
	startupTimeout time.Duration
	callTimeout    time.Duration
	logger         zerolog.Logger
	onInvoke       func(tool string, err error)

	mu      sync.Mutex
	state   State
	tools   []ToolSpec
	nextID  int
	pending map[int]chan *rpcResponse

	closeOnce sync.Once
	closeErr  error
}

const (
	defaultStartupTimeout = 10 * time.Second
	defaultCallTimeout    = 30 * time.Second
)

func newClient(cfg Config, t transport) *Client {
	startupTimeout := cfg.StartupTimeout
	if startupTimeout <= 0 {
		startupTimeout = defaultStartupTimeout
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	return &Client{
		name:           cfg.Name,
		transport:      t,
		filter:         cfg.Filter,
		startupTimeout: startupTimeout,
		callTimeout:    callTimeout,
		logger:         cfg.Logger.With().Str("server", cfg.Name).Logger(),
		onInvoke:       cfg.OnInvoke,
		state:          StateDisconnected,
		pending:        make(map[int]chan *rpcResponse),
	}
}

// NewSubprocess creates a client that spawns a local process and speaks
// JSON-RPC over its stdio
func NewSubprocess(cfg Config, command string, args []string, dir string) *Client {
	return newClient(cfg, newSubprocessTransport(command, args, dir))
}

// NewStreaming creates a client that connects to a network endpoint over a
// persistent websocket connection
func NewStreaming(cfg Config, url string, header http.Header) *Client {
	return newClient(cfg, newStreamingTransport(url, header))
}

// Name returns the server name
func (c *Client) Name() string {
	return c.name
}

// State returns the current connection state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the transport, performs the initialize handshake, and
// fetches the tool catalogue with the configured filter applied. The whole
// startup is bounded by the startup timeout.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	}
	c.state = StateConnecting
	c.mu.Unlock()

	startupCtx, cancel := context.WithTimeout(ctx, c.startupTimeout)
	defer cancel()

	if err := c.connect(startupCtx); err != nil {
		c.mu.Lock()
		if c.state != StateClosed {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		c.transport.close()

		if errors.Is(err, context.DeadlineExceeded) && startupCtx.Err() != nil {
			return fmt.Errorf("%s: %w", c.name, ErrStartupTimeout)
		}
		return fmt.Errorf("failed to connect to %s: %w", c.name, err)
	}

	c.mu.Lock()
	c.state = StateConnected
	toolCount := len(c.tools)
	c.mu.Unlock()

	c.logger.Info().Int("tools", toolCount).Msg("Capability server connected")
	return nil
}

func (c *Client) connect(ctx context.Context) error {
	if err := c.transport.start(); err != nil {
		return err
	}

	go c.listen()

	initParams := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "convoy",
			"version": "0.1.0",
		},
	}
	if _, err := c.call(ctx, "initialize", initParams); err != nil {
		return fmt.Errorf("initialize handshake failed: %w", err)
	}

	resp, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("tool catalogue fetch failed: %w", err)
	}

	var list toolsListResult
	if err := json.Unmarshal(resp.Result, &list); err != nil {
		return fmt.Errorf("malformed tool catalogue: %w", err)
	}

	tools := make([]ToolSpec, 0, len(list.Tools))
	for _, t := range list.Tools {
		if t.Name == "" || !c.filter.Allows(t.Name) {
			continue
		}
		spec := ToolSpec{
			Name:        t.Name,
			Description: t.Description,
		}
		if len(t.InputSchema) > 0 {
			var schema map[string]interface{}
			if err := json.Unmarshal(t.InputSchema, &schema); err == nil {
				spec.InputSchema = schema
			}
		}
		tools = append(tools, spec)
	}

	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()
	return nil
}

// listen dispatches incoming responses to their pending callers. It exits on
// the first read error, failing all in-flight calls.
func (c *Client) listen() {
	for {
		data, err := c.transport.read()
		if err != nil {
			c.failPending(err)
			return
		}

		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			c.logger.Error().Err(err).Msg("Failed to unmarshal server response")
			continue
		}

		id, ok := resp.ID.(float64)
		if !ok {
			// Notification or malformed ID; nothing waits on it.
			continue
		}

		c.mu.Lock()
		ch, exists := c.pending[int(id)]
		if exists {
			delete(c.pending, int(id))
		}
		c.mu.Unlock()

		if exists {
			ch <- &resp
		}
	}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int]chan *rpcResponse)
	if c.state == StateConnected {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- &rpcResponse{Error: &rpcError{Code: -1, Message: err.Error()}}
	}
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan *rpcResponse, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := rpcRequest{
		JSONRPC: jsonrpcVersion,
		Method:  method,
		Params:  params,
		ID:      id,
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	if err := c.transport.write(data); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, &RemoteToolError{Server: c.name, Kind: ErrKindTransport, Err: err}
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, &RemoteToolError{
				Server: c.name,
				Kind:   ErrKindRemote,
				Err:    fmt.Errorf("server error (%d): %s", resp.Error.Code, resp.Error.Message),
			}
		}
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-time.After(c.callTimeout):
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, &RemoteToolError{
			Server: c.name,
			Kind:   ErrKindTimeout,
			Err:    fmt.Errorf("no response to %s within %v", method, c.callTimeout),
		}
	}
}

// Tools returns the filtered catalogue fetched at connect time
func (c *Client) Tools() []ToolSpec {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ToolSpec, len(c.tools))
	copy(out, c.tools)
	return out
}

// Invoke executes a remote tool and returns its textual output
func (c *Client) Invoke(ctx context.Context, toolName string, args map[string]interface{}) (string, error) {
	out, err := c.invoke(ctx, toolName, args)
	if c.onInvoke != nil {
		c.onInvoke(toolName, err)
	}
	return out, err
}

func (c *Client) invoke(ctx context.Context, toolName string, args map[string]interface{}) (string, error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case StateClosed:
		return "", &RemoteToolError{Server: c.name, Tool: toolName, Kind: ErrKindTransport, Err: ErrClosed}
	case StateDisconnected, StateConnecting:
		return "", &RemoteToolError{Server: c.name, Tool: toolName, Kind: ErrKindTransport, Err: ErrNotConnected}
	}

	resp, err := c.call(ctx, "tools/call", map[string]interface{}{
		"name":      toolName,
		"arguments": args,
	})
	if err != nil {
		var rte *RemoteToolError
		if errors.As(err, &rte) {
			rte.Tool = toolName
			return "", rte
		}
		return "", err
	}

	var result toolCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		// Not a content-block result; hand back the raw JSON.
		return string(resp.Result), nil
	}

	texts := make([]string, 0, len(result.Content))
	for _, block := range result.Content {
		if block.Type == "text" {
			texts = append(texts, block.Text)
		}
	}
	output := strings.Join(texts, "\n")

	if result.IsError {
		return "", &RemoteToolError{
			Server: c.name,
			Tool:   toolName,
			Kind:   ErrKindRemote,
			Err:    fmt.Errorf("%s", output),
		}
	}
	return output, nil
}

// Close tears down the transport. It is idempotent: the second and later
// calls return the first result without touching the transport again.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()

		c.closeErr = c.transport.close()
		c.logger.Debug().Msg("Capability server closed")
	})
	return c.closeErr
}
