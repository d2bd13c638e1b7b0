package agent

import (
	"encoding/json"
	"strings"

	"github.com/kestrelhq/kestrel/internal/llm"
	"github.com/kestrelhq/kestrel/internal/session"
)

// ArgsStrategy selects how streamed tool-call argument fragments are
// combined into the final argument value.
type ArgsStrategy int

const (
	// ArgsReplace parses each fragment as a complete JSON value on
	// its own, replacing whatever came before. This matches adapters
	// that emit one fully-formed argument payload per tool call.
	ArgsReplace ArgsStrategy = iota

	// ArgsAccumulate concatenates fragments and parses the result
	// once when the tool call closes. This handles adapters that
	// stream argument JSON in true multi-chunk fashion.
	ArgsAccumulate
)

// Aggregator assembles a finite stream of model delta events into the
// content blocks of one Assistant message. It is single-use: one
// aggregator per turn, discarded on abort.
type Aggregator struct {
	strategy ArgsStrategy

	blocks []session.ContentBlock
	open   map[string]int // tool-call id -> index into blocks
	bufs   map[string]*strings.Builder

	finished bool
	reason   llm.FinishReason
	usage    llm.Usage
}

// NewAggregator creates an aggregator using the given argument
// strategy.
func NewAggregator(strategy ArgsStrategy) *Aggregator {
	return &Aggregator{
		strategy: strategy,
		open:     make(map[string]int),
		bufs:     make(map[string]*strings.Builder),
	}
}

// Apply folds one stream event into the turn state.
func (a *Aggregator) Apply(ev llm.StreamEvent) {
	switch ev.Kind {
	case llm.KindTextDelta:
		a.appendText(ev.Text)
	case llm.KindToolCallStart:
		a.openCall(ev.ID, ev.ToolName)
	case llm.KindToolCallDelta:
		a.applyFragment(ev.ID, ev.Arguments)
	case llm.KindToolCallEnd:
		a.closeCall(ev.ID)
	case llm.KindFinish:
		a.finished = true
		a.reason = ev.FinishReason
		a.usage = ev.Usage
	}
}

// appendText extends the trailing text block, or starts one if the
// last block is not text.
func (a *Aggregator) appendText(text string) {
	if text == "" {
		return
	}
	if n := len(a.blocks); n > 0 && a.blocks[n-1].Type == session.BlockText {
		a.blocks[n-1].Text += text
		return
	}
	a.blocks = append(a.blocks, session.TextBlock(text))
}

// openCall inserts a new tool-call block at the current position.
func (a *Aggregator) openCall(id, name string) {
	a.blocks = append(a.blocks, session.ToolCallBlock(id, name, nil))
	a.open[id] = len(a.blocks) - 1
}

// applyFragment folds one argument fragment into the open call with
// the matching id. Fragments for unknown ids are dropped.
func (a *Aggregator) applyFragment(id, fragment string) {
	idx, ok := a.open[id]
	if !ok {
		return
	}
	switch a.strategy {
	case ArgsAccumulate:
		buf := a.bufs[id]
		if buf == nil {
			buf = &strings.Builder{}
			a.bufs[id] = buf
		}
		buf.WriteString(fragment)
	default:
		// Each fragment stands alone; a later parseable fragment
		// wins, an unparseable one is ignored.
		var args map[string]any
		if err := json.Unmarshal([]byte(fragment), &args); err == nil {
			a.blocks[idx].Arguments = args
		}
	}
}

// closeCall finalizes the open call with the matching id. In
// accumulate mode the concatenated fragments are parsed here; input
// that still fails to parse is preserved raw rather than dropped.
func (a *Aggregator) closeCall(id string) {
	idx, ok := a.open[id]
	if !ok {
		return
	}
	if buf, ok := a.bufs[id]; ok {
		raw := buf.String()
		var args map[string]any
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				args = map[string]any{"_raw": raw}
			}
		}
		a.blocks[idx].Arguments = args
		delete(a.bufs, id)
	}
	delete(a.open, id)
}

// Finished reports whether a Finish event has been seen.
func (a *Aggregator) Finished() bool { return a.finished }

// FinishReason returns the reason from the Finish event.
func (a *Aggregator) FinishReason() llm.FinishReason { return a.reason }

// Usage returns the token usage from the Finish event.
func (a *Aggregator) Usage() llm.Usage { return a.usage }

// Blocks flushes the turn and returns the finalized content blocks.
// Any tool call still open (the adapter never emitted its end event)
// is closed first so no requested call goes missing.
func (a *Aggregator) Blocks() []session.ContentBlock {
	for id := range a.open {
		a.closeCall(id)
	}
	return a.blocks
}
