package id

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewQuestionID generates a fresh question identifier with a stable prefix
// for display.
func NewQuestionID() string {
	return fmt.Sprintf("question-%s", uuid.NewString())
}

// NewThreadID generates a fresh thread identifier.
func NewThreadID() string {
	return fmt.Sprintf("thread-%s", uuid.NewString())
}

// MessageSource tags where a synthesized message id came from, so ids minted
// for the same batch position by different event kinds never collide.
type MessageSource string

const (
	SourcePlain MessageSource = "msg"
	SourceDebug MessageSource = "debug"
)

// SynthesizeMessageID builds a deterministic id for a message that arrived
// without one. The tool-call id, source tag and batch ordinal pin the
// position; the nanosecond timestamp separates distinct arrivals.
func SynthesizeMessageID(toolCallID string, source MessageSource, index int, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d-%d", toolCallID, source, index, at.UnixNano())
}
