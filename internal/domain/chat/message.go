package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role tags who authored a message.
type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
	RoleTool  Role = "tool"
)

// ToolCallRequest is a tool invocation embedded in an ai message.
type ToolCallRequest struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Message is one entry in a conversation log. The backend assigns ids; the
// demultiplexer synthesizes one when absent. Content is kept raw because
// tool results arrive as a string, a list of content blocks, or an arbitrary
// structured value.
type Message struct {
	ID         string            `json:"id,omitempty"`
	Type       Role              `json:"type"`
	Content    json.RawMessage   `json:"content,omitempty"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
}

// Text returns the content as plain text when it is a JSON string, otherwise
// the normalized rendering.
func (m Message) Text() string {
	return NormalizeResult(m.Content)
}

// NewHumanMessage builds a human-authored text message.
func NewHumanMessage(id, text string) Message {
	content, _ := json.Marshal(text)
	return Message{ID: id, Type: RoleHuman, Content: content}
}

// ToolCallStatus tracks a reconstructed tool call's lifecycle.
type ToolCallStatus string

const (
	ToolCallPending     ToolCallStatus = "pending"
	ToolCallCompleted   ToolCallStatus = "completed"
	ToolCallError       ToolCallStatus = "error"
	ToolCallInterrupted ToolCallStatus = "interrupted"
)

// PlaceholderToolName is used when a reconstructed tool call carries no name.
const PlaceholderToolName = "unknown_tool"

// ToolCall is the display-facing pairing of a request with its (possibly
// still missing) result. Records are derived from the message log on every
// read; the log stays the single source of truth.
type ToolCall struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
	Status ToolCallStatus `json:"status"`
	Result string         `json:"result,omitempty"`
}

// contentBlock is one element of a block-list result payload.
type contentBlock struct {
	Text *string `json:"text"`
}

// NormalizeResult flattens a raw result payload to display text: a JSON
// string passes through unchanged, a block list is joined block-per-line
// (falling back to the raw block where no text field exists), anything else
// is rendered as indented JSON.
func NormalizeResult(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var rawBlocks []json.RawMessage
	if err := json.Unmarshal(raw, &rawBlocks); err == nil {
		lines := make([]string, 0, len(rawBlocks))
		for _, rb := range rawBlocks {
			var block contentBlock
			if err := json.Unmarshal(rb, &block); err == nil && block.Text != nil {
				lines = append(lines, *block.Text)
				continue
			}
			lines = append(lines, string(rb))
		}
		return strings.Join(lines, "\n")
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(pretty)
}
