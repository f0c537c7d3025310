package models

import (
	"time"
)

// MessageRole identifies who authored a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// MessageSource records how a message entered the system (provenance only)
type MessageSource string

const (
	SourceVoice MessageSource = "voice"
	SourceText  MessageSource = "text"
)

// SessionStatus is the lifecycle state of a session
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionArchived SessionStatus = "archived"
)

// Message is a single entry in a session's append-only conversation log.
// Messages are immutable once written and strictly ordered by Timestamp.
type Message struct {
	SessionID string        `json:"session_id"`
	Timestamp time.Time     `json:"timestamp"`
	Role      MessageRole   `json:"role"`
	Content   string        `json:"content"`
	Source    MessageSource `json:"source"`
}

// Artifact is a file produced as a side effect of processing within a session
type Artifact struct {
	Path    string    `json:"path"`
	Created time.Time `json:"created"`
	Type    string    `json:"type"` // MIME type
	Size    int64     `json:"size"`
}

// Session is a conversation thread's metadata record
type Session struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Created      time.Time     `json:"created"`
	Updated      time.Time     `json:"updated"`
	Status       SessionStatus `json:"status"`
	MessageCount int           `json:"message_count"`
	Preview      string        `json:"preview"` // First ~100 chars of the first user message
	Artifacts    []Artifact    `json:"artifacts"`
}

// SessionSummary is the listing view of a session (no message history)
type SessionSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}

// SessionDetail is a session with its full message history
type SessionDetail struct {
	Session
	Messages []Message `json:"messages"`
}

// Summary projects a session onto its listing view
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		Name:         s.Name,
		Created:      s.Created,
		Updated:      s.Updated,
		MessageCount: s.MessageCount,
		Preview:      s.Preview,
	}
}

// --- API request/response types ---

// CreateSessionRequest is the body of POST /api/sessions
type CreateSessionRequest struct {
	Name string `json:"name"` // Empty means auto-generate from the first message
}

// UpdateSessionRequest is the body of PATCH /api/sessions/:id
type UpdateSessionRequest struct {
	Name   *string        `json:"name,omitempty"`
	Status *SessionStatus `json:"status,omitempty"`
}

// SendMessageRequest is the body of POST /api/sessions/:id/messages
type SendMessageRequest struct {
	Content string        `json:"content"`
	Role    MessageRole   `json:"role"`
	Source  MessageSource `json:"source"`
}

// ForkSessionRequest is the body of POST /api/sessions/:id/fork
type ForkSessionRequest struct {
	Name string `json:"name"`
}

// SessionListResponse is the body of GET /api/sessions
type SessionListResponse struct {
	Sessions   []SessionSummary `json:"sessions"`
	NextCursor string           `json:"next_cursor,omitempty"`
}
