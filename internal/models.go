package internal

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole identifies who authored a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// SessionType identifies what a session is bound to
type SessionType string

const (
	SessionGeneral       SessionType = "general"
	SessionDocument      SessionType = "document"
	SessionMultiDocument SessionType = "multi_document"
)

// DefaultSessionTitle is used for sessions created without a title
const DefaultSessionTitle = "New Chat"

// ChatSession represents one conversation thread known to the server
type ChatSession struct {
	ID           int64       `json:"id" yaml:"id"`
	Title        string      `json:"title" yaml:"title"`
	SessionType  SessionType `json:"session_type" yaml:"session_type"`
	DocumentID   *int64      `json:"document_id,omitempty" yaml:"document_id,omitempty"`
	MessageCount int         `json:"message_count" yaml:"message_count"`
	CreatedAt    time.Time   `json:"created_at" yaml:"created_at"`
	UpdatedAt    *time.Time  `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Source represents a document citation attached to an assistant reply
type Source struct {
	PageNumber     int     `json:"page_number"`
	Excerpt        string  `json:"excerpt"`
	RelevanceScore float64 `json:"relevance_score"`
}

// ChatMessage represents one entry in a session transcript.
// Assistant messages are mutable only while Complete is false.
type ChatMessage struct {
	ID         string      `json:"id"`
	Type       MessageRole `json:"type"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	Confidence *float64    `json:"confidence_score,omitempty"`
	Sources    []Source    `json:"sources,omitempty"`
	Complete   bool        `json:"is_complete"`
}

// NewUserMessage builds a user message with a locally generated id
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Type:      RoleUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Complete:  true,
	}
}

// SessionPatch is a partial update applied to a session.
// Nil fields are left unchanged.
type SessionPatch struct {
	Title       *string      `json:"title,omitempty"`
	DocumentID  *int64       `json:"document_id,omitempty"`
	SessionType *SessionType `json:"session_type,omitempty"`
}
