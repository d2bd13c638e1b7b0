package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kestrelhq/kestrel/internal/session"
	"github.com/kestrelhq/kestrel/internal/tools"
)

func TestComplete_TextResponse(t *testing.T) {
	var gotReq oaRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		fmt.Fprint(w, `{
			"choices":[{"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":3}
		}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", WithBaseURL(srv.URL))
	out, err := c.Complete(context.Background(), Input{
		Model:        "gpt-4o",
		SystemPrompt: "be brief",
		Messages:     []session.Message{session.NewUserMessage("hello")},
		MaxTokens:    100,
	})
	if err != nil {
		t.Fatal(err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("unexpected auth header: %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o" || gotReq.MaxTokens != 100 {
		t.Errorf("unexpected wire request: %+v", gotReq)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("expected system prompt first, got %+v", gotReq.Messages)
	}

	if len(out.Content) != 1 || out.Content[0].Text != "hi there" {
		t.Errorf("unexpected content: %+v", out.Content)
	}
	if out.FinishReason != FinishStop {
		t.Errorf("unexpected finish reason: %v", out.FinishReason)
	}
	if out.Usage.InputTokens != 12 || out.Usage.OutputTokens != 3 {
		t.Errorf("unexpected usage: %+v", out.Usage)
	}
}

func TestComplete_ToolCallResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"choices":[{"message":{
				"role":"assistant",
				"content":"let me check",
				"tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"city\":\"Austin\"}"}}]
			},"finish_reason":"tool_calls"}]
		}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("", WithBaseURL(srv.URL))
	out, err := c.Complete(context.Background(), Input{Model: "gpt-4o"})
	if err != nil {
		t.Fatal(err)
	}

	if out.FinishReason != FinishToolCalls {
		t.Errorf("unexpected finish reason: %v", out.FinishReason)
	}
	if len(out.Content) != 2 {
		t.Fatalf("expected text + tool call, got %d blocks", len(out.Content))
	}
	call := out.Content[1]
	if call.Type != session.BlockToolCall || call.Name != "get_weather" {
		t.Errorf("unexpected block: %+v", call)
	}
	if call.Arguments["city"] != "Austin" {
		t.Errorf("unexpected arguments: %v", call.Arguments)
	}
}

func TestComplete_UnparseableArgumentsKeptRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"choices":[{"message":{
				"role":"assistant",
				"tool_calls":[{"id":"call_1","type":"function","function":{"name":"t","arguments":"{broken"}}]
			},"finish_reason":"tool_calls"}]
		}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("", WithBaseURL(srv.URL))
	out, err := c.Complete(context.Background(), Input{Model: "gpt-4o"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Content[0].Arguments["_raw"] != "{broken" {
		t.Errorf("expected raw fallback, got %v", out.Content[0].Arguments)
	}
}

func TestComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewOpenAIClient("bad-key", WithBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), Input{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", apiErr.Status)
	}
}

func TestStream_TextAndToolCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req oaRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("expected stream=true")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"content":"checking "}}]}`,
			`{"choices":[{"delta":{"content":"now"}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"get_weather"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":\"Austin\"}"}}]}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
			`{"choices":[],"usage":{"prompt_tokens":9,"completion_tokens":4}}`,
		}
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewOpenAIClient("", WithBaseURL(srv.URL))

	var events []StreamEvent
	err := c.Stream(context.Background(), Input{Model: "gpt-4o"}, func(ev StreamEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatal(err)
	}

	wantKinds := []StreamEventKind{
		KindTextDelta, KindTextDelta,
		KindToolCallStart, KindToolCallDelta,
		KindToolCallEnd, KindFinish,
	}
	if len(events) != len(wantKinds) {
		t.Fatalf("expected %d events, got %d: %+v", len(wantKinds), len(events), events)
	}
	for i, want := range wantKinds {
		if events[i].Kind != want {
			t.Errorf("event %d: expected %v, got %v", i, want, events[i].Kind)
		}
	}

	if events[2].ID != "call_1" || events[2].ToolName != "get_weather" {
		t.Errorf("unexpected tool start: %+v", events[2])
	}
	if events[3].Arguments != `{"city":"Austin"}` {
		t.Errorf("unexpected arguments fragment: %q", events[3].Arguments)
	}

	final := events[len(events)-1]
	if final.FinishReason != FinishToolCalls {
		t.Errorf("unexpected finish reason: %v", final.FinishReason)
	}
	if final.Usage.InputTokens != 9 || final.Usage.OutputTokens != 4 {
		t.Errorf("unexpected usage: %+v", final.Usage)
	}
}

func TestStream_SkipsMalformedChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: this-is-not-json\n\n")
		fmt.Fprint(w, ": sse comment line\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"ok"}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewOpenAIClient("", WithBaseURL(srv.URL))
	var text string
	err := c.Stream(context.Background(), Input{Model: "gpt-4o"}, func(ev StreamEvent) {
		if ev.Kind == KindTextDelta {
			text += ev.Text
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if text != "ok" {
		t.Errorf("expected %q, got %q", "ok", text)
	}
}

func TestConvertToWire_ToolMessagesExpand(t *testing.T) {
	messages := []session.Message{
		session.NewUserMessage("do two things"),
		session.NewAssistantMessage([]session.ContentBlock{
			session.ToolCallBlock("c1", "first", map[string]any{"n": 1}),
			session.ToolCallBlock("c2", "second", nil),
		}),
		session.NewToolMessage([]session.ContentBlock{
			session.ToolResultBlock("c1", "result one"),
			session.ToolResultBlock("c2", "result two"),
		}),
	}

	wire := convertToWire("prompt", messages)
	// system, user, assistant, then one tool message per result
	if len(wire) != 5 {
		t.Fatalf("expected 5 wire messages, got %d", len(wire))
	}
	if wire[2].Role != "assistant" || len(wire[2].ToolCalls) != 2 {
		t.Errorf("unexpected assistant wire message: %+v", wire[2])
	}
	if wire[3].Role != "tool" || wire[3].ToolCallID != "c1" || wire[3].Content != "result one" {
		t.Errorf("unexpected first tool message: %+v", wire[3])
	}
	if wire[4].ToolCallID != "c2" {
		t.Errorf("unexpected second tool message: %+v", wire[4])
	}
}

func TestConvertTools(t *testing.T) {
	defs := []tools.Definition{
		{Name: "search", Description: "finds things", InputSchema: map[string]any{"type": "object"}},
	}
	wire := convertTools(defs)
	if len(wire) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(wire))
	}
	if wire[0].Type != "function" || wire[0].Function.Name != "search" {
		t.Errorf("unexpected wire tool: %+v", wire[0])
	}
}

func TestConvertFinishReason(t *testing.T) {
	tests := []struct {
		in   string
		want FinishReason
	}{
		{"stop", FinishStop},
		{"", FinishStop},
		{"tool_calls", FinishToolCalls},
		{"function_call", FinishToolCalls},
		{"length", FinishMaxTokens},
		{"content_filter", FinishError},
	}
	for _, tt := range tests {
		if got := convertFinishReason(tt.in); got != tt.want {
			t.Errorf("convertFinishReason(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("", WithBaseURL(srv.URL))
	if err := c.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}
