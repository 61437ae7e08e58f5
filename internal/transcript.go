package internal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// TranscriptStore is the durable, session-keyed ordered message log.
// It is the source of truth rendered to the user until server data is
// loaded. Appends preserve arrival order; the only in-place mutation
// allowed is content accumulation on a still-streaming assistant message.
type TranscriptStore struct {
	db *sql.DB
}

// NewTranscriptStore creates a store over an open transcript database
func NewTranscriptStore(db *sql.DB) *TranscriptStore {
	return &TranscriptStore{db: db}
}

// Load returns the ordered transcript for a session, or an empty slice
// if none is stored. Rows with unreadable citation data degrade to a
// message without sources rather than failing the load.
func (ts *TranscriptStore) Load(sessionID int64) ([]ChatMessage, error) {
	rows, err := ts.db.Query(
		`SELECT id, role, content, timestamp, confidence, sources, complete
		 FROM messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	defer rows.Close()

	messages := make([]ChatMessage, 0)
	for rows.Next() {
		var (
			msg        ChatMessage
			role       string
			stamp      string
			confidence sql.NullFloat64
			sources    sql.NullString
			complete   int
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &stamp, &confidence, &sources, &complete); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, stamp); err == nil {
			msg.Timestamp = t
		}
		if confidence.Valid {
			v := confidence.Float64
			msg.Confidence = &v
		}
		if sources.Valid && sources.String != "" {
			if err := json.Unmarshal([]byte(sources.String), &msg.Sources); err != nil {
				// Corrupt citation data is treated as absent, not fatal
				LogWarn("Dropping unreadable sources for message %s: %v", msg.ID, err)
				msg.Sources = nil
			}
		}
		msg.Type = MessageRole(role)
		msg.Complete = complete != 0
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return messages, nil
}

// Append adds a message to the end of a session's transcript
func (ts *TranscriptStore) Append(sessionID int64, msg ChatMessage) error {
	return ts.insert(sessionID, msg)
}

// ReplaceStreaming applies a content-accumulating mutation to the
// not-yet-finalized assistant message with the given id, creating it
// if absent. Mutating a message that is already complete is refused.
func (ts *TranscriptStore) ReplaceStreaming(sessionID int64, messageID string, mutate func(*ChatMessage)) error {
	row := ts.db.QueryRow(
		`SELECT seq, role, content, complete FROM messages
		 WHERE session_id = ? AND id = ?`, sessionID, messageID)

	var (
		seq      int64
		role     string
		content  string
		complete int
	)
	err := row.Scan(&seq, &role, &content, &complete)
	if err == sql.ErrNoRows {
		msg := ChatMessage{
			ID:        messageID,
			Type:      RoleAssistant,
			Timestamp: time.Now().UTC(),
		}
		mutate(&msg)
		msg.Type = RoleAssistant
		return ts.insert(sessionID, msg)
	}
	if err != nil {
		return fmt.Errorf("failed to find streaming message: %w", err)
	}

	if MessageRole(role) != RoleAssistant {
		return &ProtocolError{ReplyID: messageID, Reason: "streaming mutation targets a non-assistant message"}
	}
	if complete != 0 {
		return &ProtocolError{ReplyID: messageID, Reason: "streaming mutation targets a finalized message"}
	}

	msg := ChatMessage{ID: messageID, Type: MessageRole(role), Content: content}
	mutate(&msg)

	sourcesJSON, err := encodeSources(msg.Sources)
	if err != nil {
		return err
	}
	_, err = ts.db.Exec(
		`UPDATE messages SET content = ?, confidence = ?, sources = ?, complete = ?
		 WHERE session_id = ? AND seq = ?`,
		msg.Content, nullFloat(msg.Confidence), sourcesJSON, boolInt(msg.Complete), sessionID, seq)
	if err != nil {
		return fmt.Errorf("failed to update streaming message: %w", err)
	}
	return nil
}

// HasUserMessages reports whether a session transcript contains any
// user-authored messages.
func (ts *TranscriptStore) HasUserMessages(sessionID int64) (bool, error) {
	row := ts.db.QueryRow(
		`SELECT COUNT(1) FROM messages WHERE session_id = ? AND role = ?`,
		sessionID, RoleUser)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count user messages: %w", err)
	}
	return n > 0, nil
}

// Clear purges a session's transcript. Used on session delete and on
// detecting a server-side mismatch.
func (ts *TranscriptStore) Clear(sessionID int64) error {
	if _, err := ts.db.Exec(`DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear transcript: %w", err)
	}
	return nil
}

func (ts *TranscriptStore) insert(sessionID int64, msg ChatMessage) error {
	sourcesJSON, err := encodeSources(msg.Sources)
	if err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	_, err = ts.db.Exec(
		`INSERT INTO messages (session_id, seq, id, role, content, timestamp, confidence, sources, complete)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?), ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, sessionID, msg.ID, msg.Type, msg.Content,
		msg.Timestamp.Format(time.RFC3339Nano), nullFloat(msg.Confidence), sourcesJSON, boolInt(msg.Complete))
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func encodeSources(sources []Source) (sql.NullString, error) {
	if len(sources) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(sources)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode sources: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
