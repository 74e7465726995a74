package chat

import "encoding/json"

// ThreadID names one logical, persistent conversation with the backend.
// All per-thread state in the session layer is keyed by it.
type ThreadID string

// UnboundThread is the sentinel key used before the backend has assigned a
// thread identifier. Accumulation that happens under it is kept, not lost,
// when a real id arrives later in the page session.
const UnboundThread ThreadID = "__unbound__"

// OrUnbound maps the empty id to the sentinel.
func (t ThreadID) OrUnbound() ThreadID {
	if t == "" {
		return UnboundThread
	}
	return t
}

// Checkpoint is an opaque resumption token owned by the backend. The session
// layer holds it transiently to resume execution from an exact point; its
// contents are never interpreted.
type Checkpoint = json.RawMessage
