package types

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in a session transcript. Messages are immutable
// once appended; ordering defines conversational causality.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that requested tool execution.
	ToolCalls []ToolCallRequest `json:"tool_calls,omitempty"`

	// ToolCallID links a tool message back to the assistant call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NewMessage stamps a plain message with the current time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}
