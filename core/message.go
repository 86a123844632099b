// Package core defines the shared data model of the research runtime:
// role-tagged conversation messages, collected sources, agent lifecycle
// states and the terminal report artifact. It has no dependencies on the
// loop, parser or protocol layers so every other package can import it.
package core

import "github.com/google/uuid"

// ToolCall records a structured action the model selected for one step.
// Arguments holds the serialized JSON payload of the action.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one append-only entry of an agent's conversation history.
// ToolCalls is populated only on assistant messages that carry an action;
// ToolCallID links a tool-role result back to the originating call.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantActionMessage builds an assistant message carrying a single
// action as a tool call. Content holds the model's free-text reasoning so
// the audit trail survives in conversation history.
func AssistantActionMessage(reasoning string, call ToolCall) Message {
	return Message{Role: RoleAssistant, Content: reasoning, ToolCalls: []ToolCall{call}}
}

// ToolResultMessage builds a tool-role message with the execution result of
// a previously issued call.
func ToolResultMessage(callID, result string) Message {
	return Message{Role: RoleTool, Content: result, ToolCallID: callID}
}

// NewID generates a unique identifier used for agents and protocol chunks.
func NewID() string { return uuid.NewString() }
