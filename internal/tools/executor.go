package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/kestrelhq/kestrel/internal/events"
	"github.com/kestrelhq/kestrel/internal/permission"
	"github.com/kestrelhq/kestrel/internal/session"
)

// CallContext carries run-scoped identifiers into a tool execution.
type CallContext struct {
	// SessionID is the conversation the call belongs to.
	SessionID string
	// MessageID is the assistant message that requested the call.
	MessageID string
}

// Executor resolves tool calls against a registry and invokes them.
// Execution never raises: every failure mode becomes an error-flagged
// tool result so the model can react to it.
type Executor struct {
	registry *Registry
	guard    permission.Checker
	bus      *events.Bus
	logger   *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithGuard installs a permission checker consulted before each call.
// Without a guard, no permission enforcement happens.
func WithGuard(guard permission.Checker) ExecutorOption {
	return func(e *Executor) { e.guard = guard }
}

// WithBus installs an event bus for tool execution events.
func WithBus(bus *events.Bus) ExecutorOption {
	return func(e *Executor) { e.bus = bus }
}

// WithLogger sets the executor's logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Definitions snapshots the registry's tool definitions for one turn's
// model input.
func (e *Executor) Definitions() []Definition {
	return e.registry.Definitions()
}

// Execute runs a single tool call and returns its result block. The
// registry lock is released before invocation, so a long-running tool
// never blocks concurrent registry readers. call must be a
// BlockToolCall; anything else yields an error-flagged result.
func (e *Executor) Execute(ctx context.Context, call session.ContentBlock, cc CallContext) session.ContentBlock {
	if call.Type != session.BlockToolCall {
		return session.ErrorResultBlock(call.ID, "Invalid tool call content")
	}

	if e.guard != nil {
		switch e.guard.Check(call.Name, call.Arguments, cc.SessionID) {
		case permission.Allow:
			// Proceed.
		case permission.Ask:
			// No interactive resolution at this layer: surface the
			// pending decision to the model as a refusal.
			return session.ErrorResultBlock(call.ID, "Permission required: "+call.Name)
		default:
			e.logger.Warn("tool call denied by permission rules",
				"tool", call.Name,
				"session_id", cc.SessionID,
			)
			return session.ErrorResultBlock(call.ID, "Permission denied: "+call.Name)
		}
	}

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		err := &ErrNotFound{ToolName: call.Name}
		return session.ErrorResultBlock(call.ID, err.Error())
	}

	e.bus.Emit(events.SourceExecutor, events.KindToolCall, map[string]any{
		"session_id": cc.SessionID,
		"tool":       call.Name,
		"call_id":    call.ID,
	})

	start := time.Now()
	result, err := tool.Execute(ctx, call.Arguments)
	elapsed := time.Since(start)

	e.bus.Emit(events.SourceExecutor, events.KindToolDone, map[string]any{
		"session_id":  cc.SessionID,
		"tool":        call.Name,
		"call_id":     call.ID,
		"ok":          err == nil,
		"duration_ms": elapsed.Milliseconds(),
	})

	if err != nil {
		e.logger.Error("tool execution failed",
			"tool", call.Name,
			"call_id", call.ID,
			"error", err,
			"elapsed", elapsed.Round(time.Millisecond),
		)
		return session.ErrorResultBlock(call.ID, err.Error())
	}

	e.logger.Debug("tool executed",
		"tool", call.Name,
		"call_id", call.ID,
		"result_len", len(result.Output),
		"elapsed", elapsed.Round(time.Millisecond),
	)

	block := session.ToolResultBlock(call.ID, result.Output)
	block.IsError = result.IsError
	return block
}

// ExecuteAll processes calls to completion in the order given,
// sequentially. It returns one result per input call in the same order,
// even when some calls fail.
func (e *Executor) ExecuteAll(ctx context.Context, calls []session.ContentBlock, cc CallContext) []session.ContentBlock {
	results := make([]session.ContentBlock, 0, len(calls))
	for _, call := range calls {
		results = append(results, e.Execute(ctx, call, cc))
	}
	return results
}
