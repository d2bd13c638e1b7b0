package agent

import (
	"testing"

	"github.com/kestrelhq/kestrel/internal/llm"
	"github.com/kestrelhq/kestrel/internal/session"
)

func TestAggregator_TextMergesIntoTrailingBlock(t *testing.T) {
	a := NewAggregator(ArgsReplace)
	a.Apply(llm.StreamEvent{Kind: llm.KindTextDelta, Text: "hello "})
	a.Apply(llm.StreamEvent{Kind: llm.KindTextDelta, Text: "world"})
	a.Apply(llm.StreamEvent{Kind: llm.KindFinish, FinishReason: llm.FinishStop})

	blocks := a.Blocks()
	if len(blocks) != 1 {
		t.Fatalf("expected 1 merged text block, got %d", len(blocks))
	}
	if blocks[0].Text != "hello world" {
		t.Errorf("unexpected text: %q", blocks[0].Text)
	}
}

func TestAggregator_TextSplitByToolCall(t *testing.T) {
	a := NewAggregator(ArgsReplace)
	a.Apply(llm.StreamEvent{Kind: llm.KindTextDelta, Text: "let me check"})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallStart, ID: "c1", ToolName: "lookup"})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallEnd, ID: "c1"})
	a.Apply(llm.StreamEvent{Kind: llm.KindTextDelta, Text: "and also"})

	blocks := a.Blocks()
	if len(blocks) != 3 {
		t.Fatalf("expected text, tool_call, text; got %d blocks", len(blocks))
	}
	if blocks[0].Type != session.BlockText || blocks[1].Type != session.BlockToolCall || blocks[2].Type != session.BlockText {
		t.Errorf("unexpected block order: %v %v %v", blocks[0].Type, blocks[1].Type, blocks[2].Type)
	}
}

func TestAggregator_SingleChunkReplace(t *testing.T) {
	a := NewAggregator(ArgsReplace)
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallStart, ID: "c1", ToolName: "search"})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallDelta, ID: "c1", Arguments: `{"query":"weather"}`})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallEnd, ID: "c1"})

	blocks := a.Blocks()
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Arguments["query"] != "weather" {
		t.Errorf("unexpected arguments: %v", blocks[0].Arguments)
	}
}

func TestAggregator_ReplaceLaterFragmentWins(t *testing.T) {
	// Each fragment is a complete value on its own; the last parseable
	// one replaces whatever came before.
	a := NewAggregator(ArgsReplace)
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallStart, ID: "c1", ToolName: "search"})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallDelta, ID: "c1", Arguments: `{"query":"draft"}`})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallDelta, ID: "c1", Arguments: `{"query":"final"}`})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallEnd, ID: "c1"})

	blocks := a.Blocks()
	if blocks[0].Arguments["query"] != "final" {
		t.Errorf("expected later fragment to win, got %v", blocks[0].Arguments)
	}
}

func TestAggregator_ReplaceIgnoresPartialFragments(t *testing.T) {
	a := NewAggregator(ArgsReplace)
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallStart, ID: "c1", ToolName: "search"})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallDelta, ID: "c1", Arguments: `{"query":"complete"}`})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallDelta, ID: "c1", Arguments: `{"que`})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallEnd, ID: "c1"})

	blocks := a.Blocks()
	if blocks[0].Arguments["query"] != "complete" {
		t.Errorf("unparseable fragment should be ignored, got %v", blocks[0].Arguments)
	}
}

func TestAggregator_MultiChunkAccumulate(t *testing.T) {
	a := NewAggregator(ArgsAccumulate)
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallStart, ID: "c1", ToolName: "search"})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallDelta, ID: "c1", Arguments: `{"qu`})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallDelta, ID: "c1", Arguments: `ery":"wea`})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallDelta, ID: "c1", Arguments: `ther"}`})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallEnd, ID: "c1"})

	blocks := a.Blocks()
	if blocks[0].Arguments["query"] != "weather" {
		t.Errorf("expected concatenated parse, got %v", blocks[0].Arguments)
	}
}

func TestAggregator_AccumulateUnparseableKeptRaw(t *testing.T) {
	a := NewAggregator(ArgsAccumulate)
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallStart, ID: "c1", ToolName: "search"})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallDelta, ID: "c1", Arguments: `not json at all`})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallEnd, ID: "c1"})

	blocks := a.Blocks()
	if blocks[0].Arguments["_raw"] != "not json at all" {
		t.Errorf("expected raw preservation, got %v", blocks[0].Arguments)
	}
}

func TestAggregator_MultipleOpenCalls(t *testing.T) {
	a := NewAggregator(ArgsReplace)
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallStart, ID: "c1", ToolName: "first"})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallStart, ID: "c2", ToolName: "second"})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallDelta, ID: "c2", Arguments: `{"n":2}`})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallDelta, ID: "c1", Arguments: `{"n":1}`})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallEnd, ID: "c1"})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallEnd, ID: "c2"})

	blocks := a.Blocks()
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Name != "first" || blocks[1].Name != "second" {
		t.Errorf("blocks out of order: %q, %q", blocks[0].Name, blocks[1].Name)
	}
	if blocks[0].Arguments["n"] != float64(1) || blocks[1].Arguments["n"] != float64(2) {
		t.Errorf("fragments routed to wrong call: %v, %v", blocks[0].Arguments, blocks[1].Arguments)
	}
}

func TestAggregator_DeltaForUnknownIDDropped(t *testing.T) {
	a := NewAggregator(ArgsReplace)
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallDelta, ID: "ghost", Arguments: `{"x":1}`})

	if len(a.Blocks()) != 0 {
		t.Errorf("expected no blocks, got %d", len(a.Blocks()))
	}
}

func TestAggregator_BlocksClosesDanglingCalls(t *testing.T) {
	// Adapter never emitted the end event; Blocks must still surface
	// the call.
	a := NewAggregator(ArgsAccumulate)
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallStart, ID: "c1", ToolName: "search"})
	a.Apply(llm.StreamEvent{Kind: llm.KindToolCallDelta, ID: "c1", Arguments: `{"q":"x"}`})

	blocks := a.Blocks()
	if len(blocks) != 1 {
		t.Fatalf("expected dangling call to be finalized, got %d blocks", len(blocks))
	}
	if blocks[0].Arguments["q"] != "x" {
		t.Errorf("unexpected arguments: %v", blocks[0].Arguments)
	}
}

func TestAggregator_FinishMetadata(t *testing.T) {
	a := NewAggregator(ArgsReplace)
	a.Apply(llm.StreamEvent{
		Kind:         llm.KindFinish,
		FinishReason: llm.FinishToolCalls,
		Usage:        llm.Usage{InputTokens: 10, OutputTokens: 20},
	})

	if !a.Finished() {
		t.Error("expected finished")
	}
	if a.FinishReason() != llm.FinishToolCalls {
		t.Errorf("unexpected reason: %v", a.FinishReason())
	}
	if a.Usage().OutputTokens != 20 {
		t.Errorf("unexpected usage: %+v", a.Usage())
	}
}
