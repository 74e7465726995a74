// Package session owns the single point of control for advancing one
// conversation: submissions, the interrupt/checkpoint/resume protocol, and
// the hooks external surfaces observe it through.
package session

import (
	"context"

	"loom/internal/domain/chat"
	"loom/internal/transport"
)

// Transport is the outbound half of the backend channel. The concrete
// implementation (websocket, test fake) lives outside this package.
type Transport interface {
	Submit(ctx context.Context, thread chat.ThreadID, req transport.SubmitRequest) error
	PatchState(ctx context.Context, thread chat.ThreadID, values map[string]any) error
	Stop(ctx context.Context, thread chat.ThreadID) error
}

// ThreadListRefresher is poked synchronously after every operation that
// transitions backend state, so externally displayed thread summaries never
// need to poll.
type ThreadListRefresher interface {
	RefreshThreadList()
}

type nopRefresher struct{}

func (nopRefresher) RefreshThreadList() {}
