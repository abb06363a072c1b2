package domain

import "time"

// MessageRole is the author of a chat turn.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	// MessageRoleSystem only appears in stored history and is shown as assistant.
	MessageRoleSystem MessageRole = "system"
)

// Tool is a self-regulation exercise.
type Tool string

const (
	ToolBreathing   Tool = "breathing"
	ToolMovement    Tool = "movement"
	ToolAffirmation Tool = "affirmation"
)

// Valid reports whether t names a known exercise.
func (t Tool) Valid() bool {
	switch t {
	case ToolBreathing, ToolMovement, ToolAffirmation:
		return true
	}
	return false
}

// ChatMessage is one text turn. Messages are immutable once created.
type ChatMessage struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Role      MessageRole    `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"timestamp"`
}

// ToolSuggestion recommends an exercise based on an assistant reply.
// A nil *ToolSuggestion means no suggestion.
type ToolSuggestion struct {
	Tool   Tool   `json:"tool"`
	Reason string `json:"reason"`
}

// AILog records one completion exchange.
type AILog struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id"`
	Input         string    `json:"input"`
	Output        string    `json:"output"`
	ToolTriggered Tool      `json:"tool_triggered,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
