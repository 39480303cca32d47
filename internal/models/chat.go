package models

import (
	"time"

	"github.com/google/uuid"
)

// Message roles as sent by clients. The provider's role vocabulary is
// narrower; the mapping lives in the services package.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is a single message in a conversation transcript,
// ordered oldest first.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the payload sent to the streaming chat endpoint. Messages
// holds the full transcript; the last entry is the newest user prompt.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// StreamRecord is one newline-delimited JSON record of the chat response
// body, carrying a single generated text fragment.
type StreamRecord struct {
	Text string `json:"text"`
}

type Conversation struct {
	ID        uuid.UUID     `json:"id"`
	UserID    uuid.UUID     `json:"user_id"`
	CreatedAt time.Time     `json:"created_at"`
	Messages  []ChatMessage `json:"messages,omitempty"`
}
