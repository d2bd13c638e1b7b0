// Package llm defines the model adapter boundary the agent loop
// consumes, and ships an OpenAI-compatible implementation of it. The
// core never sees a vendor payload: it builds an Input, and gets back
// either a complete Output or a sequence of StreamEvents.
package llm

import (
	"log/slog"

	"github.com/kestrelhq/kestrel/internal/session"
	"github.com/kestrelhq/kestrel/internal/tools"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Input is a normalized model request.
type Input struct {
	// Model names the model to call.
	Model string

	// Messages is the full conversation log.
	Messages []session.Message

	// SystemPrompt is prepended as the system message.
	SystemPrompt string

	// Tools are the definitions the model may call.
	Tools []tools.Definition

	// MaxTokens caps the generated output.
	MaxTokens int

	// Temperature is the optional sampling temperature.
	Temperature *float64
}

// FinishReason reports why the model stopped generating.
type FinishReason string

// Finish reasons.
const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishMaxTokens FinishReason = "max_tokens"
	FinishError     FinishReason = "error"
)

// Usage carries token accounting for one model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Output is a complete (non-streaming) model response, already
// converted to session content blocks.
type Output struct {
	Content      []session.ContentBlock
	FinishReason FinishReason
	Usage        Usage
}

// StreamEventKind identifies the type of stream event.
type StreamEventKind int

// Stream event kinds.
const (
	// KindTextDelta is an incremental text fragment.
	KindTextDelta StreamEventKind = iota

	// KindToolCallStart opens a tool call record.
	KindToolCallStart

	// KindToolCallDelta carries a tool call argument fragment.
	KindToolCallDelta

	// KindToolCallEnd closes a tool call record.
	KindToolCallEnd

	// KindFinish ends the stream; FinishReason and Usage are set.
	KindFinish
)

// StreamEvent is a single event in a streaming model response.
// Consumers switch on Kind to determine what data is available.
type StreamEvent struct {
	Kind StreamEventKind

	// Text is set for KindTextDelta.
	Text string

	// ID is set for the tool call kinds; ToolName additionally for
	// KindToolCallStart.
	ID       string
	ToolName string

	// Arguments is the raw argument fragment for KindToolCallDelta.
	Arguments string

	// FinishReason and Usage are set for KindFinish.
	FinishReason FinishReason
	Usage        Usage
}

// StreamFunc receives streaming events in order. The adapter calls it
// from a single goroutine; a stream is finite and ends with exactly one
// KindFinish event unless the adapter returns an error first.
type StreamFunc func(StreamEvent)
