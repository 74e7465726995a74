// Package demux reconstructs per-subagent message logs from the multiplexed
// stream a multi-agent backend emits. Events are grouped by the tool-call id
// carried in their namespace; message payloads are sniffed out of the handful
// of shapes the producer is known to use.
package demux

import (
	"encoding/json"

	"loom/internal/domain/chat"
	"loom/internal/utils/id"
)

// The producer's event schema is loosely specified and has drifted between
// versions, so extraction tries an explicit priority list of named shapes
// instead of one struct decode. Each shape is tested independently.

// shapeUpdateModel: update event, messages nested under the model state.
// { "model": { "messages": [...] } }
type shapeUpdateModel struct {
	Model struct {
		Messages []chat.Message `json:"messages"`
	} `json:"model"`
}

// shapeTopMessages: messages directly at the top level of the payload.
// { "messages": [...] } — used by update events (fallback) and debug
// payloads (primary).
type shapeTopMessages struct {
	Messages []chat.Message `json:"messages"`
}

// shapeDebugEnvelope: debug event data wraps the payload of interest.
// { "type": "...", "payload": {...} }
type shapeDebugEnvelope struct {
	Payload json.RawMessage `json:"payload"`
}

// shapeDebugInput: debug payload with messages under the node input.
// { "input": { "messages": [...] } }
type shapeDebugInput struct {
	Input struct {
		Messages []chat.Message `json:"messages"`
	} `json:"input"`
}

// batch is one extracted candidate message sequence together with the source
// tag used when synthesizing ids for its id-less members.
type batch struct {
	messages []chat.Message
	source   id.MessageSource
}

// extractBatch pulls the candidate message sequence out of an event, trying
// shapes in priority order for the event's kind. ok is false when no shape
// matched or the matched sequence is empty.
func extractBatch(event chat.StreamEvent) (batch, bool) {
	if len(event.Data) == 0 {
		return batch{}, false
	}
	switch event.Kind {
	case chat.EventUpdate:
		return extractUpdateBatch(event.Data)
	case chat.EventDebug:
		return extractDebugBatch(event.Data)
	default:
		return batch{}, false
	}
}

func extractUpdateBatch(data json.RawMessage) (batch, bool) {
	var nested shapeUpdateModel
	if err := json.Unmarshal(data, &nested); err == nil && len(nested.Model.Messages) > 0 {
		return batch{messages: nested.Model.Messages, source: id.SourcePlain}, true
	}
	var top shapeTopMessages
	if err := json.Unmarshal(data, &top); err == nil && len(top.Messages) > 0 {
		return batch{messages: top.Messages, source: id.SourcePlain}, true
	}
	return batch{}, false
}

func extractDebugBatch(data json.RawMessage) (batch, bool) {
	var envelope shapeDebugEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil || len(envelope.Payload) == 0 {
		return batch{}, false
	}

	var top shapeTopMessages
	if err := json.Unmarshal(envelope.Payload, &top); err == nil && len(top.Messages) > 0 {
		return batch{messages: top.Messages, source: id.SourceDebug}, true
	}

	var input shapeDebugInput
	if err := json.Unmarshal(envelope.Payload, &input); err == nil && len(input.Input.Messages) > 0 {
		return batch{messages: input.Input.Messages, source: id.SourceDebug}, true
	}

	// The payload may itself be a single tool message.
	var msg chat.Message
	if err := json.Unmarshal(envelope.Payload, &msg); err == nil && msg.Type == chat.RoleTool {
		return batch{messages: []chat.Message{msg}, source: id.SourceDebug}, true
	}

	return batch{}, false
}
