package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// Archive is a SQLite-backed mirror of session history. It is additive:
// the in-memory Session remains the source of truth for a run; the
// archive only records what was appended, for inspection across process
// restarts. Tool calls are additionally stored in a structured table so
// they can be queried by name without unpacking message content.
type Archive struct {
	db *sql.DB
}

// OpenArchive opens (and migrates) the archive database at path.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return a, nil
}

// migrate creates the archive schema.
func (a *Archive) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		system_prompt TEXT NOT NULL,
		model TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

	CREATE TABLE IF NOT EXISTS tool_calls (
		id TEXT PRIMARY KEY,
		message_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		arguments TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_tool ON tool_calls(tool_name);
	`

	_, err := a.db.Exec(schema)
	return err
}

// SaveSession records a session's identity and configuration.
func (a *Archive) SaveSession(s *Session) error {
	_, err := a.db.Exec(
		`INSERT OR IGNORE INTO sessions (id, system_prompt, model, created_at) VALUES (?, ?, ?, ?)`,
		s.ID(), s.SystemPrompt(), s.Model().Name, s.CreatedAt(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SaveMessage records one appended message. Implements MessageSink.
func (a *Archive) SaveMessage(sessionID string, msg Message) error {
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, sessionID, string(msg.Role), string(content), msg.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	for _, call := range msg.ToolCalls() {
		args, err := json.Marshal(call.Arguments)
		if err != nil {
			return fmt.Errorf("marshal arguments: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO tool_calls (id, message_id, session_id, tool_name, arguments, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			call.ID, msg.ID, sessionID, call.Name, string(args), msg.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert tool call: %w", err)
		}
	}

	return tx.Commit()
}

// Messages loads the archived log for a session in append order.
func (a *Archive) Messages(sessionID string) ([]Message, error) {
	rows, err := a.db.Query(
		`SELECT id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			msg     Message
			role    string
			content string
			created time.Time
		)
		if err := rows.Scan(&msg.ID, &role, &content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal([]byte(content), &msg.Content); err != nil {
			return nil, fmt.Errorf("unmarshal content for %s: %w", msg.ID, err)
		}
		msg.Role = Role(role)
		msg.CreatedAt = created
		out = append(out, msg)
	}
	return out, rows.Err()
}

// ToolCallCount returns how many archived tool calls name the given tool.
func (a *Archive) ToolCallCount(toolName string) (int, error) {
	var n int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM tool_calls WHERE tool_name = ?`, toolName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tool calls: %w", err)
	}
	return n, nil
}

// Close releases the underlying database handle.
func (a *Archive) Close() error {
	return a.db.Close()
}
