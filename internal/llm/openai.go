package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kestrelhq/kestrel/internal/httpkit"
	"github.com/kestrelhq/kestrel/internal/session"
	"github.com/kestrelhq/kestrel/internal/tools"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// OpenAIOption configures an OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithBaseURL points the client at a non-default endpoint (any
// OpenAI-compatible server).
func WithBaseURL(url string) OpenAIOption {
	return func(c *OpenAIClient) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) OpenAIOption {
	return func(c *OpenAIClient) { c.logger = logger }
}

// WithTimeout sets the per-request timeout. Zero disables it, which is
// what streaming callers want.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *OpenAIClient) {
		c.httpClient = httpkit.NewClient(httpkit.WithTimeout(d))
	}
}

// NewOpenAIClient creates a client for an OpenAI-compatible API.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	c := &OpenAIClient{
		apiKey:  apiKey,
		baseURL: defaultOpenAIBaseURL,
		// No overall timeout: streaming responses stay open for the
		// duration of the generation. Callers bound calls with ctx.
		httpClient: httpkit.NewClient(httpkit.WithTimeout(0)),
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Wire types for the chat completions API.

type oaRequest struct {
	Model         string          `json:"model"`
	Messages      []oaMessage     `json:"messages"`
	Tools         []oaTool        `json:"tools,omitempty"`
	MaxTokens     int             `json:"max_tokens,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	StreamOptions *oaStreamOption `json:"stream_options,omitempty"`
}

type oaStreamOption struct {
	IncludeUsage bool `json:"include_usage"`
}

type oaMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content,omitempty"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
}

type oaToolCall struct {
	Index    int        `json:"index,omitempty"`
	ID       string     `json:"id,omitempty"`
	Type     string     `json:"type,omitempty"`
	Function oaFunction `json:"function"`
}

type oaFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type oaTool struct {
	Type     string       `json:"type"`
	Function oaToolSchema `json:"function"`
}

type oaToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type oaResponse struct {
	Choices []oaChoice `json:"choices"`
	Usage   *oaUsage   `json:"usage"`
}

type oaChoice struct {
	Message      oaMessage `json:"message"`
	Delta        oaMessage `json:"delta"`
	FinishReason string    `json:"finish_reason"`
}

type oaUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Complete sends a blocking chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, in Input) (*Output, error) {
	body, err := c.roundTrip(ctx, in, false)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp oaResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("response contains no choices")
	}

	choice := resp.Choices[0]
	content := convertWireMessage(choice.Message)

	out := &Output{
		Content:      content,
		FinishReason: convertFinishReason(choice.FinishReason),
	}
	if resp.Usage != nil {
		out.Usage = Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	c.logger.Debug("completion received",
		"model", in.Model,
		"finish_reason", out.FinishReason,
		"input_tokens", out.Usage.InputTokens,
		"output_tokens", out.Usage.OutputTokens,
	)

	return out, nil
}

// Stream sends a streaming chat completion request, delivering events
// to fn until the stream ends.
func (c *OpenAIClient) Stream(ctx context.Context, in Input, fn StreamFunc) error {
	body, err := c.roundTrip(ctx, in, true)
	if err != nil {
		return err
	}
	defer body.Close()

	return c.consumeStream(ctx, body, fn)
}

// Ping checks reachability by listing models.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: httpkit.ReadErrorBody(resp.Body, 4096)}
	}
	return nil
}

// roundTrip marshals the request and returns the raw response body.
func (c *OpenAIClient) roundTrip(ctx context.Context, in Input, stream bool) (io.ReadCloser, error) {
	req := oaRequest{
		Model:       in.Model,
		Messages:    convertToWire(in.SystemPrompt, in.Messages),
		Tools:       convertTools(in.Tools),
		MaxTokens:   in.MaxTokens,
		Temperature: in.Temperature,
		Stream:      stream,
	}
	if stream {
		req.StreamOptions = &oaStreamOption{IncludeUsage: true}
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, &APIError{Status: resp.StatusCode, Body: errBody}
	}

	return resp.Body, nil
}

// streamToolCall tracks one in-progress tool call during streaming.
type streamToolCall struct {
	id      string
	started bool
}

// consumeStream reads the SSE response and translates chunks into
// StreamEvents. One ToolCallEnd is emitted per opened call, before the
// final Finish.
func (c *OpenAIClient) consumeStream(ctx context.Context, body io.Reader, fn StreamFunc) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		open         = make(map[int]*streamToolCall) // index -> call
		finishReason FinishReason
		usage        Usage
	)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		if data == "[DONE]" {
			break
		}

		var chunk oaResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed events.
			continue
		}

		if chunk.Usage != nil {
			usage = Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			fn(StreamEvent{Kind: KindTextDelta, Text: choice.Delta.Content})
		}

		for _, tc := range choice.Delta.ToolCalls {
			call, ok := open[tc.Index]
			if !ok {
				call = &streamToolCall{}
				open[tc.Index] = call
			}
			if tc.ID != "" {
				call.id = tc.ID
			}
			if tc.Function.Name != "" && !call.started {
				call.started = true
				fn(StreamEvent{Kind: KindToolCallStart, ID: call.id, ToolName: tc.Function.Name})
			}
			if tc.Function.Arguments != "" {
				fn(StreamEvent{Kind: KindToolCallDelta, ID: call.id, Arguments: tc.Function.Arguments})
			}
		}

		if choice.FinishReason != "" {
			finishReason = convertFinishReason(choice.FinishReason)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}

	// Close tool calls in index order so downstream content order is
	// stable, then finish the turn.
	indexes := make([]int, 0, len(open))
	for i := range open {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		fn(StreamEvent{Kind: KindToolCallEnd, ID: open[i].id})
	}

	if finishReason == "" {
		finishReason = FinishStop
	}
	fn(StreamEvent{Kind: KindFinish, FinishReason: finishReason, Usage: usage})

	return nil
}

// convertToWire flattens the session log into wire messages. Tool-role
// messages expand to one wire message per result block, since the API
// correlates results individually by tool_call_id.
func convertToWire(systemPrompt string, messages []session.Message) []oaMessage {
	var out []oaMessage

	if systemPrompt != "" {
		out = append(out, oaMessage{Role: "system", Content: systemPrompt})
	}

	for _, msg := range messages {
		switch msg.Role {
		case session.RoleUser:
			out = append(out, oaMessage{Role: "user", Content: msg.Text()})

		case session.RoleAssistant:
			wire := oaMessage{Role: "assistant", Content: msg.Text()}
			for _, b := range msg.Content {
				if b.Type != session.BlockToolCall {
					continue
				}
				args, err := json.Marshal(b.Arguments)
				if err != nil {
					args = []byte("{}")
				}
				wire.ToolCalls = append(wire.ToolCalls, oaToolCall{
					ID:   b.ID,
					Type: "function",
					Function: oaFunction{
						Name:      b.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, wire)

		case session.RoleTool:
			for _, b := range msg.Content {
				if b.Type != session.BlockToolResult {
					continue
				}
				out = append(out, oaMessage{
					Role:       "tool",
					Content:    b.Result,
					ToolCallID: b.ToolCallID,
				})
			}
		}
	}

	return out
}

// convertTools maps definitions to the wire tool format.
func convertTools(defs []tools.Definition) []oaTool {
	out := make([]oaTool, 0, len(defs))
	for _, d := range defs {
		out = append(out, oaTool{
			Type: "function",
			Function: oaToolSchema{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.InputSchema,
			},
		})
	}
	return out
}

// convertWireMessage maps a wire assistant message to content blocks.
// Text precedes tool calls, preserving the order the API presents.
func convertWireMessage(m oaMessage) []session.ContentBlock {
	var content []session.ContentBlock

	if m.Content != "" {
		content = append(content, session.TextBlock(m.Content))
	}

	for _, tc := range m.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]any{"_raw": tc.Function.Arguments}
			}
		}
		content = append(content, session.ToolCallBlock(tc.ID, tc.Function.Name, args))
	}

	return content
}

// convertFinishReason maps wire finish reasons to FinishReason.
func convertFinishReason(s string) FinishReason {
	switch s {
	case "stop", "":
		return FinishStop
	case "tool_calls", "function_call":
		return FinishToolCalls
	case "length":
		return FinishMaxTokens
	default:
		return FinishError
	}
}
