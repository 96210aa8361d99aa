package model

import "time"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry in a session's conversation history.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session holds one child's ongoing conversation. The session ID doubles as
// the bearer credential, so it must come from a cryptographically strong
// source and must never appear raw in logs.
//
// Messages[0] is always the live composed system prompt; it is overwritten
// in place when AdditionalPrompt changes. Every other entry is an immutable
// turn appended in conversational order.
type Session struct {
	ID               string        `json:"sessionId"`
	Username         string        `json:"username"`
	CreatedAt        time.Time     `json:"createdAt"`
	AdditionalPrompt string        `json:"additionalPrompt,omitempty"`
	Messages         []ChatMessage `json:"messages"`
}

// Clone returns a deep copy so callers can read session state without
// holding store locks.
func (s *Session) Clone() *Session {
	copied := *s
	copied.Messages = make([]ChatMessage, len(s.Messages))
	copy(copied.Messages, s.Messages)
	return &copied
}
