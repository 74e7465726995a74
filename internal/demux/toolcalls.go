package demux

import (
	"loom/internal/domain/chat"
)

// ToolCallsFor derives the display-facing tool-call records for one
// subagent's log. Tool-role messages are indexed by their tool_call_id, then
// every request embedded in an ai message is paired against that index:
// completed when a result exists, pending otherwise. Pairing is eventually
// consistent — a request whose result has not arrived yet is legitimate.
// Tool-role messages with no matching request contribute nothing.
func (d *Demux) ToolCallsFor(thread chat.ThreadID, toolCallID string) []chat.ToolCall {
	return ReconstructToolCalls(d.MessagesFor(thread, toolCallID))
}

// ReconstructToolCalls pairs requests and results within one message log.
func ReconstructToolCalls(msgs []chat.Message) []chat.ToolCall {
	results := make(map[string]chat.Message, len(msgs))
	for _, msg := range msgs {
		if msg.Type == chat.RoleTool && msg.ToolCallID != "" {
			if _, exists := results[msg.ToolCallID]; !exists {
				results[msg.ToolCallID] = msg
			}
		}
	}

	var calls []chat.ToolCall
	for _, msg := range msgs {
		if msg.Type != chat.RoleAI {
			continue
		}
		for _, req := range msg.ToolCalls {
			call := chat.ToolCall{
				ID:     req.ID,
				Name:   req.Name,
				Args:   req.Args,
				Status: chat.ToolCallPending,
			}
			if call.Name == "" {
				call.Name = chat.PlaceholderToolName
			}
			if result, ok := results[req.ID]; ok {
				call.Status = chat.ToolCallCompleted
				call.Result = result.Text()
			}
			calls = append(calls, call)
		}
	}
	return calls
}
