package agent

import "github.com/kestrelhq/kestrel/internal/session"

// EventKind identifies one caller-facing progress event from a
// streaming run.
type EventKind string

const (
	// EventMessageStart marks the beginning of one Assistant turn.
	EventMessageStart EventKind = "message_start"

	// EventTextDelta carries one increment of assistant text.
	EventTextDelta EventKind = "text_delta"

	// EventToolCallStart announces a tool call the model requested.
	EventToolCallStart EventKind = "tool_call_start"

	// EventToolResult carries one finished tool result.
	EventToolResult EventKind = "tool_result"

	// EventMessageEnd marks a persisted Assistant message; Message
	// is set.
	EventMessageEnd EventKind = "message_end"

	// EventError is terminal: the run stopped and the in-progress
	// turn was discarded. Err is set. No events follow.
	EventError EventKind = "error"
)

// Event is one progress notification emitted during a streaming run.
type Event struct {
	Kind EventKind

	// Text is set for EventTextDelta.
	Text string

	// ToolCallID and ToolName are set for EventToolCallStart and
	// EventToolResult.
	ToolCallID string
	ToolName   string

	// Result is set for EventToolResult.
	Result *session.ContentBlock

	// Message is set for EventMessageEnd.
	Message *session.Message

	// Err is set for EventError.
	Err error
}

// EventFunc receives progress events in order. It is called from the
// run's goroutine; a slow handler slows the run.
type EventFunc func(Event)
