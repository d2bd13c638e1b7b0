// Package session holds the conversation entity model: messages, their
// content blocks, and the session that orders them. Sessions are mutated
// only by the agent loop; everything here is safe for concurrent use.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies the sender of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// BlockType discriminates the ContentBlock union.
type BlockType string

// Content block types.
const (
	BlockText       BlockType = "text"
	BlockToolCall   BlockType = "tool_call"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one element of a message body. Type selects which
// fields are meaningful: Text for BlockText; ID, Name and Arguments for
// BlockToolCall; ToolCallID, Result and IsError for BlockToolResult.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// Text is set for BlockText.
	Text string `json:"text,omitempty"`

	// ID, Name and Arguments are set for BlockToolCall. Arguments is
	// schema-free JSON-shaped data as produced by the model.
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`

	// ToolCallID, Result and IsError are set for BlockToolResult.
	// ToolCallID references the ID of a tool call in the immediately
	// preceding assistant message.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Result     string `json:"result,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
}

// TextBlock creates a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolCallBlock creates a tool call content block.
func ToolCallBlock(id, name string, args map[string]any) ContentBlock {
	return ContentBlock{Type: BlockToolCall, ID: id, Name: name, Arguments: args}
}

// ToolResultBlock creates a successful tool result content block.
func ToolResultBlock(toolCallID, result string) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolCallID: toolCallID, Result: result}
}

// ErrorResultBlock creates an error-flagged tool result content block.
func ErrorResultBlock(toolCallID, message string) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolCallID: toolCallID, Result: message, IsError: true}
}

// Message is one entry in a session's ordered log. Messages are
// immutable once appended.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   []ContentBlock `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewUserMessage creates a user message containing a single text block.
func NewUserMessage(text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   []ContentBlock{TextBlock(text)},
		CreatedAt: time.Now().UTC(),
	}
}

// NewAssistantMessage creates an assistant message from finalized content.
func NewAssistantMessage(content []ContentBlock) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewToolMessage creates a tool-role message carrying tool results.
func NewToolMessage(results []ContentBlock) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleTool,
		Content:   results,
		CreatedAt: time.Now().UTC(),
	}
}

// ToolCalls returns the tool call blocks of the message, in content order.
func (m Message) ToolCalls() []ContentBlock {
	var calls []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockToolCall {
			calls = append(calls, b)
		}
	}
	return calls
}

// Text joins the message's text blocks with newlines. Tool call and
// tool result blocks are skipped.
func (m Message) Text() string {
	var out string
	for _, b := range m.Content {
		if b.Type != BlockText {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += b.Text
	}
	return out
}

// validateToolMessage checks that every tool result in msg references a
// distinct tool call emitted by the preceding assistant message prev.
func validateToolMessage(prev, msg Message) error {
	if prev.Role != RoleAssistant {
		return fmt.Errorf("tool message must follow an assistant message, got %s", prev.Role)
	}

	callIDs := make(map[string]bool)
	for _, b := range prev.Content {
		if b.Type == BlockToolCall {
			if callIDs[b.ID] {
				return fmt.Errorf("duplicate tool call id %q in assistant message %s", b.ID, prev.ID)
			}
			callIDs[b.ID] = true
		}
	}

	for _, b := range msg.Content {
		if b.Type != BlockToolResult {
			return fmt.Errorf("tool message %s contains a %s block", msg.ID, b.Type)
		}
		if !callIDs[b.ToolCallID] {
			return fmt.Errorf("tool result references unknown call id %q", b.ToolCallID)
		}
	}

	return nil
}
