package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom/internal/domain/chat"
)

// testBackend upgrades one connection, replays scripted frames and records
// everything the client writes.
type testBackend struct {
	t      *testing.T
	frames []string

	mu       sync.Mutex
	received []json.RawMessage
}

func (b *testBackend) handler(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()

	for _, f := range b.frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			return
		}
	}
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		b.mu.Lock()
		b.received = append(b.received, json.RawMessage(raw))
		b.mu.Unlock()
	}
}

func (b *testBackend) commands() []json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]json.RawMessage, len(b.received))
	copy(out, b.received)
	return out
}

func startBackend(t *testing.T, frames ...string) (*testBackend, string) {
	backend := &testBackend{t: t, frames: frames}
	srv := httptest.NewServer(http.HandlerFunc(backend.handler))
	t.Cleanup(srv.Close)
	return backend, "ws" + strings.TrimPrefix(srv.URL, "http")
}

type eventRecorder struct {
	mu     sync.Mutex
	events []chat.StreamEvent
}

func (r *eventRecorder) handle(_ chat.ThreadID, event chat.StreamEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) wait(t *testing.T, n int) []chat.StreamEvent {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		if len(r.events) >= n {
			out := make([]chat.StreamEvent, len(r.events))
			copy(out, r.events)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d event(s)", n)
	return nil
}

func TestClientReceivesEvents(t *testing.T) {
	_, url := startBackend(t,
		`{"id":"e1","type":"event","thread_id":"th","event":{"event":"updates","namespace":["tools:call_1"],"data":{"messages":[]}}}`,
	)

	recorder := &eventRecorder{}
	client, err := Dial(context.Background(), ClientConfig{URL: url}, recorder.handle)
	require.NoError(t, err)
	defer client.Close()

	events := recorder.wait(t, 1)
	assert.Equal(t, chat.EventUpdate, events[0].Kind)
	assert.Equal(t, []string{"tools:call_1"}, events[0].Namespace)
}

func TestClientDropsReplayedEventIDs(t *testing.T) {
	_, url := startBackend(t,
		`{"id":"dup","type":"event","event":{"event":"updates"}}`,
		`{"id":"dup","type":"event","event":{"event":"updates"}}`,
		`{"id":"next","type":"event","event":{"event":"debug"}}`,
	)

	recorder := &eventRecorder{}
	client, err := Dial(context.Background(), ClientConfig{URL: url}, recorder.handle)
	require.NoError(t, err)
	defer client.Close()

	events := recorder.wait(t, 2)
	require.Len(t, events, 2)
	assert.Equal(t, chat.EventUpdate, events[0].Kind)
	assert.Equal(t, chat.EventDebug, events[1].Kind)
}

func TestClientRepairsMalformedFrames(t *testing.T) {
	// Trailing comma is the kind of damage jsonrepair recovers from.
	_, url := startBackend(t,
		`{"id":"e1","type":"event","event":{"event":"updates","namespace":["tools:x"],}}`,
	)

	recorder := &eventRecorder{}
	client, err := Dial(context.Background(), ClientConfig{URL: url}, recorder.handle)
	require.NoError(t, err)
	defer client.Close()

	events := recorder.wait(t, 1)
	assert.Equal(t, []string{"tools:x"}, events[0].Namespace)
}

func TestClientSubmitReachesBackend(t *testing.T) {
	backend, url := startBackend(t)
	client, err := Dial(context.Background(), ClientConfig{URL: url}, nil)
	require.NoError(t, err)
	defer client.Close()

	err = client.Submit(context.Background(), "th", SubmitRequest{
		Command:         ResumeCommand("ok"),
		StreamSubgraphs: true,
	})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(backend.commands()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	commands := backend.commands()
	require.NotEmpty(t, commands)

	var decoded struct {
		Type string `json:"type"`
		Body struct {
			Command struct {
				Resume string `json:"resume"`
			} `json:"command"`
		} `json:"body"`
	}
	require.NoError(t, json.Unmarshal(commands[0], &decoded))
	assert.Equal(t, "submit", decoded.Type)
	assert.Equal(t, "ok", decoded.Body.Command.Resume)
}

func TestClientWriteAfterCloseFails(t *testing.T) {
	_, url := startBackend(t)
	client, err := Dial(context.Background(), ClientConfig{URL: url}, nil)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	err = client.Stop(context.Background(), "th")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClientRoutesInterrupts(t *testing.T) {
	_, url := startBackend(t,
		`{"id":"i1","type":"interrupt","thread_id":"th","checkpoint":{"checkpoint_id":"cp-1"},"interrupt":{"questions":[{"text":"pick"}]}}`,
	)

	type interrupt struct {
		thread     chat.ThreadID
		checkpoint chat.Checkpoint
		value      json.RawMessage
	}
	got := make(chan interrupt, 1)
	client, err := Dial(context.Background(), ClientConfig{
		URL: url,
		OnInterrupt: func(thread chat.ThreadID, checkpoint chat.Checkpoint, value json.RawMessage) {
			got <- interrupt{thread: thread, checkpoint: checkpoint, value: value}
		},
	}, nil)
	require.NoError(t, err)
	defer client.Close()

	select {
	case in := <-got:
		assert.Equal(t, chat.ThreadID("th"), in.thread)
		assert.JSONEq(t, `{"checkpoint_id":"cp-1"}`, string(in.checkpoint))
		assert.Contains(t, string(in.value), "pick")
	case <-time.After(2 * time.Second):
		t.Fatal("interrupt not delivered")
	}
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := decodeEnvelope([]byte("\x00\x01"))
	assert.Error(t, err)
}
