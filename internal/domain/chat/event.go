package chat

import (
	"encoding/json"
	"strings"
)

// EventKind discriminates the two stream event variants the backend emits.
type EventKind string

const (
	// EventUpdate carries incremental graph-state updates, including any
	// messages a subgraph produced.
	EventUpdate EventKind = "updates"
	// EventDebug carries execution traces whose payload shape varies by
	// producer version.
	EventDebug EventKind = "debug"
)

// StreamEvent is one element of the multiplexed event stream. Namespace is
// the ordered path of subgraphs that produced it; an empty namespace means
// the root agent. Data stays raw until a component sniffs its shape.
type StreamEvent struct {
	Kind      EventKind       `json:"event"`
	Namespace []string        `json:"namespace,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// toolsNamespacePrefix is the convention for subagent namespace segments.
const toolsNamespacePrefix = "tools:"

// SubagentKey extracts the tool-call id grouping key from an event's
// namespace. The second return is false for root-agent events (empty
// namespace), which subagent demultiplexing ignores. A first segment not
// matching the tools:<id> convention is used verbatim; namespace conventions
// may not always match exactly.
func (e StreamEvent) SubagentKey() (string, bool) {
	if len(e.Namespace) == 0 {
		return "", false
	}
	seg := e.Namespace[0]
	if rest, ok := strings.CutPrefix(seg, toolsNamespacePrefix); ok && rest != "" {
		return rest, true
	}
	return seg, true
}
