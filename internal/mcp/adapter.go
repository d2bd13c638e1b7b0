package mcp

import (
	"context"
	"fmt"

	"github.com/kestrelhq/kestrel/internal/tools"
)

// remoteTool adapts one server-advertised tool to the tools.Tool
// interface so the executor can dispatch to it like any local tool.
type remoteTool struct {
	client *Client
	def    ToolDefinition
}

// NewTool wraps a server tool definition as a tools.Tool backed by the
// given client.
func NewTool(client *Client, def ToolDefinition) tools.Tool {
	return &remoteTool{client: client, def: def}
}

func (t *remoteTool) Name() string        { return t.def.Name }
func (t *remoteTool) Description() string { return t.def.Description }

func (t *remoteTool) Schema() map[string]any {
	if t.def.InputSchema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return t.def.InputSchema
}

// Execute forwards the call to the server. Transport and server
// failures surface as execution errors so the agent loop sees them as
// tool failures rather than engine faults.
func (t *remoteTool) Execute(ctx context.Context, args map[string]any) (*tools.Result, error) {
	output, err := t.client.CallTool(ctx, t.def.Name, args)
	if err != nil {
		return nil, &tools.ErrExecutionFailed{
			Reason: fmt.Sprintf("MCP tool %s on %s: %v", t.def.Name, t.client.Name(), err),
		}
	}
	return &tools.Result{Output: output}, nil
}
