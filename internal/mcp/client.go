package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kestrelhq/kestrel/internal/buildinfo"
)

// protocolVersion is the MCP protocol revision this client speaks.
const protocolVersion = "2024-11-05"

// State tracks the client connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ToolDefinition describes a tool advertised by an MCP server.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Client is an MCP client bound to one server over one transport. The
// transports carry a single request at a time, so the client holds a
// mutex across each request/response exchange; concurrent callers
// queue rather than interleave.
type Client struct {
	name      string
	transport Transport
	logger    *slog.Logger

	nextID atomic.Int64

	mu    sync.Mutex
	state State
}

// NewClient creates a client for the named server over the given
// transport. The connection is not established until Connect.
func NewClient(name string, transport Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		name:      name,
		transport: transport,
		logger:    logger.With("server", name, "transport", transport.Kind()),
	}
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.name }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the transport and performs the MCP initialize
// handshake. The server's initialize result (its capabilities and
// version info) is not needed for tool calling and is discarded.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.transport.Connect(ctx); err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("connecting to %s: %w", c.name, err)
	}

	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "kestrel",
			"version": buildinfo.Version,
		},
	}
	if _, err := c.call(ctx, "initialize", params); err != nil {
		_ = c.transport.Close()
		c.setState(StateDisconnected)
		return fmt.Errorf("initializing %s: %w", c.name, err)
	}

	c.setState(StateConnected)
	c.logger.Info("MCP server connected")
	return nil
}

// ListTools asks the server for its tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	raw, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Tools []ToolDefinition `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("decode tools/list result: %v", err)}
	}
	return result.Tools, nil
}

// CallTool invokes a tool on the server and returns its textual
// output. Text content blocks are concatenated; any other block types
// fall back to their raw JSON so output is never silently dropped. A
// result flagged isError comes back as an ExecutionError carrying the
// text.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	params := map[string]any{
		"name":      name,
		"arguments": args,
	}
	raw, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return "", err
	}

	var result struct {
		Content []json.RawMessage `json:"content"`
		IsError bool              `json:"isError"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", &ProtocolError{Reason: fmt.Sprintf("decode tools/call result: %v", err)}
	}

	var sb strings.Builder
	for _, block := range result.Content {
		var text struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(block, &text); err == nil && text.Type == "text" {
			sb.WriteString(text.Text)
			continue
		}
		sb.Write(block)
	}

	if result.IsError {
		return "", &ExecutionError{
			Method: "tools/call",
			RPC:    &RPCError{Message: sb.String()},
		}
	}
	return sb.String(), nil
}

// Disconnect closes the transport.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisconnected {
		return nil
	}
	c.state = StateDisconnected
	c.logger.Info("MCP server disconnected")
	return c.transport.Close()
}

// call performs one JSON-RPC exchange. The mutex keeps a single
// request in flight per client, which the stdio framing requires and
// the HTTP transports tolerate.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := NewRequest(c.nextID.Add(1), method, params)
	c.logger.Debug("MCP request", "method", method, "id", req.ID)

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, &ExecutionError{Method: method, RPC: resp.Error}
	}
	if resp.Result == nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("%s response carries neither result nor error", method)}
	}
	return resp.Result, nil
}

// setState updates the connection state under the client mutex.
func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
