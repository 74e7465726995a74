// Package transport carries the wire contract between the session layer and
// the backend: commands out, stream events in. The session core treats it as
// an external collaborator; reconnection and timeout policy live here, not
// in the core.
package transport

import (
	"encoding/json"
	"fmt"

	"loom/internal/domain/chat"
)

// EndNode is the graph node a forced-terminal command jumps to.
const EndNode = "__end__"

// InterruptNodes is the node list used to pause before or after tool
// execution.
var InterruptNodes = []string{"tools"}

// RunConfig is the per-submission configuration forwarded to the backend.
type RunConfig struct {
	// Assistant carries the assistant-level configuration verbatim.
	Assistant map[string]any
	// RecursionLimit bounds how many graph steps one submission may take.
	RecursionLimit int
}

// MarshalJSON flattens the assistant config and splices recursion_limit in
// beside it, matching the backend's expected shape.
func (c RunConfig) MarshalJSON() ([]byte, error) {
	merged := make(map[string]any, len(c.Assistant)+1)
	for k, v := range c.Assistant {
		merged[k] = v
	}
	if c.RecursionLimit > 0 {
		merged["recursion_limit"] = c.RecursionLimit
	}
	return json.Marshal(merged)
}

// Command is the backend-side control verb of a submission: either resume an
// outstanding interrupt with a value, or jump the run to a node.
type Command struct {
	resume  any
	goto_   string
	hasGoto bool
}

// ResumeCommand answers an outstanding interrupt with an arbitrary value.
func ResumeCommand(value any) *Command {
	return &Command{resume: value}
}

// GotoEndCommand forces the run to its terminal state, discarding any
// pending continuation.
func GotoEndCommand() *Command {
	return &Command{goto_: EndNode, hasGoto: true}
}

// MarshalJSON emits {"resume": value} or {"goto": node, "update": null};
// the explicit null update is required by the backend's command schema.
func (c *Command) MarshalJSON() ([]byte, error) {
	if c.hasGoto {
		return json.Marshal(struct {
			Goto   string `json:"goto"`
			Update any    `json:"update"`
		}{Goto: c.goto_, Update: nil})
	}
	return json.Marshal(struct {
		Resume any `json:"resume"`
	}{Resume: c.resume})
}

// SubmitRequest is one outbound submission: fresh messages, a command, or a
// checkpoint resume, plus run options.
type SubmitRequest struct {
	Messages         []chat.Message  `json:"messages,omitempty"`
	Command          *Command        `json:"command,omitempty"`
	OptimisticValues map[string]any  `json:"optimisticValues,omitempty"`
	Config           RunConfig       `json:"config"`
	StreamSubgraphs  bool            `json:"streamSubgraphs"`
	InterruptBefore  []string        `json:"interruptBefore,omitempty"`
	InterruptAfter   []string        `json:"interruptAfter,omitempty"`
	Checkpoint       chat.Checkpoint `json:"checkpoint,omitempty"`
}

// frame is the envelope every outbound message travels in.
type frame struct {
	Type   string          `json:"type"`
	Thread chat.ThreadID   `json:"thread_id,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
}

const (
	frameSubmit = "submit"
	framePatch  = "patch_state"
	frameStop   = "stop"
)

func encodeFrame(kind string, thread chat.ThreadID, body any) ([]byte, error) {
	var raw json.RawMessage
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", kind, err)
		}
		raw = encoded
	}
	return json.Marshal(frame{Type: kind, Thread: thread, Body: raw})
}

// statePatch updates backend-held state directly, bypassing the normal
// submission path.
type statePatch struct {
	Values map[string]any `json:"values"`
}
