// Package agent runs the turn-taking loop: call the model, execute
// the tool calls it requests, feed the results back, and repeat until
// the model stops asking for tools or the step budget runs out.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kestrelhq/kestrel/internal/events"
	"github.com/kestrelhq/kestrel/internal/llm"
	"github.com/kestrelhq/kestrel/internal/session"
	"github.com/kestrelhq/kestrel/internal/tools"
)

// DefaultMaxSteps bounds the turns in one run when no explicit budget
// is configured.
const DefaultMaxSteps = 10

// Agent drives one session through runs. It is the only writer of the
// session's message log and status.
type Agent struct {
	sess     *session.Session
	client   llm.Client
	executor *tools.Executor

	maxSteps int
	strategy ArgsStrategy
	bus      *events.Bus
	logger   *slog.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithMaxSteps sets the per-run turn budget.
func WithMaxSteps(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxSteps = n
		}
	}
}

// WithArgsStrategy sets how streamed tool-call argument fragments are
// combined.
func WithArgsStrategy(s ArgsStrategy) Option {
	return func(a *Agent) { a.strategy = s }
}

// WithBus attaches an event bus for run telemetry.
func WithBus(bus *events.Bus) Option {
	return func(a *Agent) { a.bus = bus }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// New creates an agent bound to one session, model client, and tool
// executor.
func New(sess *session.Session, client llm.Client, executor *tools.Executor, opts ...Option) *Agent {
	a := &Agent{
		sess:     sess,
		client:   client,
		executor: executor,
		maxSteps: DefaultMaxSteps,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes one batch-mode run: append the user input, then loop
// model calls and tool dispatches until the model stops requesting
// tools. Exhausting the step budget is not an error; the accumulated
// log is returned as-is with a warning logged and a budget event
// emitted.
func (a *Agent) Run(ctx context.Context, userInput string) ([]session.Message, error) {
	if err := a.begin(userInput); err != nil {
		return nil, err
	}

	for step := range a.maxSteps {
		if err := ctx.Err(); err != nil {
			a.sess.SetStatus(session.StatusError)
			return nil, fmt.Errorf("run cancelled (step %d): %w", step, err)
		}

		input := a.buildInput()
		a.bus.Emit(events.SourceAgent, events.KindLLMCall, map[string]any{
			"session": a.sess.ID(),
			"step":    step,
			"model":   input.Model,
			"msgs":    len(input.Messages),
		})

		out, err := a.client.Complete(ctx, input)
		if err != nil {
			a.sess.SetStatus(session.StatusError)
			return nil, fmt.Errorf("model call failed (step %d): %w", step, err)
		}

		a.bus.Emit(events.SourceAgent, events.KindLLMResponse, map[string]any{
			"session":       a.sess.ID(),
			"step":          step,
			"finish_reason": string(out.FinishReason),
			"input_tokens":  out.Usage.InputTokens,
			"output_tokens": out.Usage.OutputTokens,
		})

		assistant := session.NewAssistantMessage(out.Content)
		if err := a.sess.Append(assistant); err != nil {
			a.sess.SetStatus(session.StatusError)
			return nil, fmt.Errorf("appending assistant message: %w", err)
		}

		calls := assistant.ToolCalls()
		if len(calls) == 0 {
			return a.complete(step + 1)
		}

		a.logger.Debug("dispatching tool calls",
			"session", a.sess.ID(), "step", step, "calls", len(calls))

		results := a.executor.ExecuteAll(ctx, calls, tools.CallContext{
			SessionID: a.sess.ID(),
			MessageID: assistant.ID,
		})
		if err := a.sess.Append(session.NewToolMessage(results)); err != nil {
			a.sess.SetStatus(session.StatusError)
			return nil, fmt.Errorf("appending tool results: %w", err)
		}
	}

	return a.exhaust()
}

// Stream executes one streaming-mode run. Progress is delivered to fn
// in order; the sequence always ends with either the final
// EventMessageEnd of a completed run or a single EventError. On an
// adapter error the partially-built Assistant message for that turn is
// discarded, never persisted.
func (a *Agent) Stream(ctx context.Context, userInput string, fn EventFunc) error {
	if fn == nil {
		fn = func(Event) {}
	}
	if err := a.begin(userInput); err != nil {
		return err
	}

	for step := range a.maxSteps {
		if err := ctx.Err(); err != nil {
			a.sess.SetStatus(session.StatusError)
			fn(Event{Kind: EventError, Err: err})
			return fmt.Errorf("run cancelled (step %d): %w", step, err)
		}

		fn(Event{Kind: EventMessageStart})

		agg := NewAggregator(a.strategy)
		err := a.client.Stream(ctx, a.buildInput(), func(ev llm.StreamEvent) {
			agg.Apply(ev)
			switch ev.Kind {
			case llm.KindTextDelta:
				fn(Event{Kind: EventTextDelta, Text: ev.Text})
			case llm.KindToolCallStart:
				fn(Event{Kind: EventToolCallStart, ToolCallID: ev.ID, ToolName: ev.ToolName})
			}
		})
		if err != nil {
			// The turn's aggregated content dies with the
			// aggregator; nothing reaches the session.
			a.sess.SetStatus(session.StatusError)
			fn(Event{Kind: EventError, Err: err})
			return fmt.Errorf("model stream failed (step %d): %w", step, err)
		}

		assistant := session.NewAssistantMessage(agg.Blocks())
		if err := a.sess.Append(assistant); err != nil {
			a.sess.SetStatus(session.StatusError)
			fn(Event{Kind: EventError, Err: err})
			return fmt.Errorf("appending assistant message: %w", err)
		}
		fn(Event{Kind: EventMessageEnd, Message: &assistant})

		calls := assistant.ToolCalls()
		if len(calls) == 0 {
			_, err := a.complete(step + 1)
			return err
		}

		cc := tools.CallContext{SessionID: a.sess.ID(), MessageID: assistant.ID}
		results := make([]session.ContentBlock, 0, len(calls))
		for _, call := range calls {
			result := a.executor.Execute(ctx, call, cc)
			results = append(results, result)
			fn(Event{
				Kind:       EventToolResult,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Result:     &result,
			})
		}
		if err := a.sess.Append(session.NewToolMessage(results)); err != nil {
			a.sess.SetStatus(session.StatusError)
			fn(Event{Kind: EventError, Err: err})
			return fmt.Errorf("appending tool results: %w", err)
		}
	}

	_, err := a.exhaust()
	return err
}

// begin transitions the session into a run and appends the user input.
func (a *Agent) begin(userInput string) error {
	a.sess.SetStatus(session.StatusRunning)
	if err := a.sess.Append(session.NewUserMessage(userInput)); err != nil {
		a.sess.SetStatus(session.StatusError)
		return fmt.Errorf("appending user message: %w", err)
	}
	a.bus.Emit(events.SourceAgent, events.KindRunStart, map[string]any{
		"session":   a.sess.ID(),
		"max_steps": a.maxSteps,
	})
	return nil
}

// buildInput snapshots the session and tool registry into one model
// request. The tool list is re-fetched every turn so registry changes
// between turns are visible.
func (a *Agent) buildInput() llm.Input {
	model := a.sess.Model()
	return llm.Input{
		Model:        model.Name,
		Messages:     a.sess.Messages(),
		SystemPrompt: a.sess.SystemPrompt(),
		Tools:        a.executor.Definitions(),
		MaxTokens:    model.MaxTokens,
		Temperature:  model.Temperature,
	}
}

// complete finishes a successful run.
func (a *Agent) complete(steps int) ([]session.Message, error) {
	a.sess.SetStatus(session.StatusCompleted)
	a.logger.Info("run completed",
		"session", a.sess.ID(), "steps", steps, "msgs", a.sess.Len())
	a.bus.Emit(events.SourceAgent, events.KindRunComplete, map[string]any{
		"session": a.sess.ID(),
		"steps":   steps,
	})
	return a.sess.Messages(), nil
}

// exhaust finishes a run that spent its whole step budget with the
// model still requesting tools. The log is returned without an error.
func (a *Agent) exhaust() ([]session.Message, error) {
	a.sess.SetStatus(session.StatusCompleted)
	a.logger.Warn("step budget exhausted",
		"session", a.sess.ID(), "max_steps", a.maxSteps)
	a.bus.Emit(events.SourceAgent, events.KindBudgetExhausted, map[string]any{
		"session":   a.sess.ID(),
		"max_steps": a.maxSteps,
	})
	return a.sess.Messages(), nil
}
