package session

import (
	"fmt"
	"log/slog"
	"sync"
)

// Store is an id-keyed collection of sessions. It owns the optional
// archive: sessions created through a store with an archive attached
// have their messages persisted as they are appended.
type Store struct {
	logger  *slog.Logger
	archive *Archive

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session store. archive may be nil for a
// purely in-memory store.
func NewStore(logger *slog.Logger, archive *Archive) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:   logger,
		archive:  archive,
		sessions: make(map[string]*Session),
	}
}

// Create makes a new session, registers it, and wires the archive sink.
func (st *Store) Create(model ModelConfig, systemPrompt string) *Session {
	s := New(model, systemPrompt)
	s.SetLogger(st.logger)

	if st.archive != nil {
		if err := st.archive.SaveSession(s); err != nil {
			st.logger.Warn("archive session create failed",
				"session_id", s.ID(),
				"error", err,
			)
		} else {
			s.SetSink(st.archive)
		}
	}

	st.mu.Lock()
	st.sessions[s.ID()] = s
	st.mu.Unlock()

	st.logger.Debug("session created", "session_id", s.ID(), "model", model.Name)
	return s
}

// Get returns the session with the given id, or an error if unknown.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", id)
	}
	return s, nil
}

// Remove drops a session from the store. The archived history, if any,
// is retained.
func (st *Store) Remove(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Count returns the number of live sessions.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// IDs returns the ids of all live sessions. No ordering guarantee.
func (st *Store) IDs() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	return ids
}
