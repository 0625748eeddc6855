package model

import "time"

// Role is the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a persisted chat message in a conversation
type Message struct {
	ID               string       `json:"id"`
	ConversationID   string       `json:"conversation_id"`
	Role             Role         `json:"role"`
	Content          string       `json:"content"`
	ReasoningContent string       `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall   `json:"tool_calls,omitempty"`
	Attachments      []Attachment `json:"attachments,omitempty"`
	ToolCallID       string       `json:"tool_call_id,omitempty"` // set on role=tool messages sent to providers
	Timestamp        time.Time    `json:"timestamp"`
}

// ToolCall is a provider-agnostic tool invocation requested by the model.
// Output and IsError are filled once the tool has run.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Output    string         `json:"output,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

// Attachment is a file attached to a user message
type Attachment struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Clone returns a deep copy of the message so readers never share slices with the store
func (m Message) Clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = tc
			if tc.Arguments != nil {
				args := make(map[string]any, len(tc.Arguments))
				for k, v := range tc.Arguments {
					args[k] = v
				}
				out.ToolCalls[i].Arguments = args
			}
		}
	}
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return out
}
