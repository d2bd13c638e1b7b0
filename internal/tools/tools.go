// Package tools provides the tool capability contract, the name-keyed
// registry, and the executor that dispatches model-requested tool calls.
// Local tools and MCP-bridged tools share the same contract, so the
// executor resolves both through one path.
package tools

import (
	"context"
)

// Definition is the model-facing description of a tool: its name, what
// it does, and a JSON Schema for its input. Definitions are produced
// from registered tools or from an MCP tools/list response, and
// consumed as part of the model input.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Result is the outcome of one tool execution.
type Result struct {
	// Output is the tool's text output.
	Output string

	// IsError marks output that describes a tool-level failure the
	// model should react to (as opposed to an error returned from
	// Execute, which the executor converts itself).
	IsError bool
}

// Tool is the capability contract every callable implements, whether
// local or backed by a remote MCP server.
type Tool interface {
	// Name returns the stable name used as the registry key.
	Name() string

	// Description returns the model-facing description.
	Description() string

	// Schema returns the JSON Schema for the tool's input.
	Schema() map[string]any

	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// Define packages a tool's name, description and schema as a Definition.
func Define(t Tool) Definition {
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.Schema(),
	}
}

// Handler is the function signature for locally implemented tools.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// funcTool adapts a Handler to the Tool contract.
type funcTool struct {
	name        string
	description string
	schema      map[string]any
	handler     Handler
}

// New creates a local tool from a handler function.
func New(name, description string, schema map[string]any, handler Handler) Tool {
	return &funcTool{
		name:        name,
		description: description,
		schema:      schema,
		handler:     handler,
	}
}

func (t *funcTool) Name() string           { return t.name }
func (t *funcTool) Description() string    { return t.description }
func (t *funcTool) Schema() map[string]any { return t.schema }

func (t *funcTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	out, err := t.handler(ctx, args)
	if err != nil {
		return nil, err
	}
	return &Result{Output: out}, nil
}
