package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a session. Transitions within one
// run are monotonic: Idle → Running → Completed or Error. A finished
// session returns to Idle when the next run begins.
type Status string

// Session statuses.
const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// ModelConfig carries the model parameters a session runs with.
type ModelConfig struct {
	Name        string   `yaml:"name" json:"name"`
	MaxTokens   int      `yaml:"max_tokens" json:"max_tokens"`
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
}

// DefaultModelConfig returns the model configuration used when none is
// supplied.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Name:      "gpt-4o",
		MaxTokens: 4096,
	}
}

// MessageSink receives messages as they are appended to a session.
// Sink failures never fail the append; they are logged and dropped.
type MessageSink interface {
	SaveMessage(sessionID string, msg Message) error
}

// Session is one conversation: an ordered message log, the system
// prompt, the model configuration, and a run status. All mutation goes
// through methods that hold the session's lock for the duration of a
// single read or write, never across a model or tool call.
type Session struct {
	id           string
	systemPrompt string
	model        ModelConfig
	createdAt    time.Time

	logger *slog.Logger

	mu       sync.Mutex
	messages []Message
	status   Status
	sink     MessageSink
}

// New creates an idle session with the given model configuration and
// system prompt.
func New(model ModelConfig, systemPrompt string) *Session {
	return &Session{
		id:           uuid.NewString(),
		systemPrompt: systemPrompt,
		model:        model,
		createdAt:    time.Now().UTC(),
		logger:       slog.Default(),
		status:       StatusIdle,
	}
}

// NewWithDefaults creates an idle session with DefaultModelConfig.
func NewWithDefaults(systemPrompt string) *Session {
	return New(DefaultModelConfig(), systemPrompt)
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// SystemPrompt returns the session's system prompt.
func (s *Session) SystemPrompt() string { return s.systemPrompt }

// Model returns the session's model configuration.
func (s *Session) Model() ModelConfig { return s.model }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// SetLogger replaces the session's logger. A nil logger restores
// slog.Default().
func (s *Session) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetSink attaches a message sink that observes every append (e.g. the
// SQLite archive). Pass nil to detach.
func (s *Session) SetSink(sink MessageSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Append adds a message to the end of the log. Tool-role messages are
// validated against the preceding assistant message: every result must
// reference a distinct tool call id from that message.
func (s *Session) Append(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Role == RoleTool {
		if len(s.messages) == 0 {
			return fmt.Errorf("tool message with no preceding assistant message")
		}
		if err := validateToolMessage(s.messages[len(s.messages)-1], msg); err != nil {
			return err
		}
	}

	s.messages = append(s.messages, msg)

	if s.sink != nil {
		if err := s.sink.SaveMessage(s.id, msg); err != nil {
			s.logger.Warn("session archive write failed",
				"session_id", s.id,
				"message_id", msg.ID,
				"error", err,
			)
		}
	}

	return nil
}

// Messages returns a copy of the message log in append order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the log.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Status returns the session's current run status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus transitions the session's run status.
func (s *Session) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Clear resets the message log. It is an explicit operation outside a
// run: clearing a running session is an error.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusRunning {
		return fmt.Errorf("cannot clear session %s while a run is in progress", s.id)
	}
	s.messages = nil
	s.status = StatusIdle
	return nil
}
