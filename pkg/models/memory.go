package models

import "time"

// MemoryType classifies a stored memory entry.
type MemoryType string

const (
	MemoryUserMessage      MemoryType = "user_message"
	MemoryAssistantMessage MemoryType = "assistant_message"
)

// Role returns the chat role a memory of this type replays as.
func (t MemoryType) Role() Role {
	if t == MemoryAssistantMessage {
		return RoleAssistant
	}
	return RoleUser
}

// MemoryEntry is one persisted conversation turn.
type MemoryEntry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	AgentID   string         `json:"agentId,omitempty"`
	Type      MemoryType     `json:"type"`
	Content   string         `json:"content"`
	Source    string         `json:"source"`
	Embedding []float32      `json:"-"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ThoughtType classifies a stored thought.
type ThoughtType string

const (
	ThoughtReasoning  ThoughtType = "reasoning"
	ThoughtToolResult ThoughtType = "tool_result"
)

// Thought is internal agent reasoning kept apart from the visible reply.
type Thought struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	AgentID   string      `json:"agentId,omitempty"`
	Type      ThoughtType `json:"type"`
	Content   string      `json:"content"`
	Context   string      `json:"context,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}
