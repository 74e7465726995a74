package stub

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom/internal/demux"
	"loom/internal/domain/chat"
	"loom/internal/questions"
	"loom/internal/transport"
)

const scenarioYAML = `
steps:
  - trigger: connect
    events:
      - id: e1
        thread: th-1
        kind: updates
        namespace: ["tools:call_1"]
        data:
          messages:
            - type: ai
              id: m1
              tool_calls:
                - id: tc1
                  name: search
                  args: {q: x}
  - trigger: submit
    events:
      - id: e2
        thread: th-1
        kind: debug
        namespace: ["tools:call_1"]
        data:
          type: task_result
          payload:
            input:
              messages:
                - type: tool
                  id: m2
                  tool_call_id: tc1
                  content: result
`

func TestParseScenario(t *testing.T) {
	scenario, err := ParseScenario([]byte(scenarioYAML))
	require.NoError(t, err)
	require.Len(t, scenario.Steps, 2)
	assert.Equal(t, TriggerConnect, scenario.Steps[0].Trigger)
	assert.Equal(t, chat.EventUpdate, scenario.Steps[0].Events[0].Kind)
}

func TestParseScenarioRejectsMissingTrigger(t *testing.T) {
	_, err := ParseScenario([]byte("steps:\n  - events: []\n"))
	assert.Error(t, err)
}

func TestWireFrameShape(t *testing.T) {
	event := ScriptedEvent{
		ID:        "e1",
		Thread:    "th-1",
		Kind:      chat.EventUpdate,
		Namespace: []string{"tools:call_1"},
		Data:      map[string]any{"messages": []any{}},
	}
	raw, err := event.wireFrame()
	require.NoError(t, err)

	var decoded struct {
		ID     string           `json:"id"`
		Type   string           `json:"type"`
		Thread string           `json:"thread_id"`
		Event  chat.StreamEvent `json:"event"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "event", decoded.Type)
	assert.Equal(t, chat.EventUpdate, decoded.Event.Kind)
	assert.Equal(t, []string{"tools:call_1"}, decoded.Event.Namespace)
}

func TestPlaybackConsumesStepsInOrder(t *testing.T) {
	scenario := Scenario{Steps: []Step{
		{Trigger: TriggerSubmit, Events: []ScriptedEvent{{ID: "first"}}},
		{Trigger: TriggerSubmit, Events: []ScriptedEvent{{ID: "second"}}},
	}}
	play := newPlayback(scenario)

	assert.Equal(t, "first", play.take(TriggerSubmit)[0].ID)
	assert.Equal(t, "second", play.take(TriggerSubmit)[0].ID)
	assert.Nil(t, play.take(TriggerSubmit))
	assert.Nil(t, play.take(TriggerConnect))
}

// End to end: scripted backend → websocket client → demultiplexer.
func TestScenarioRoundTripThroughClientAndDemux(t *testing.T) {
	scenario, err := ParseScenario([]byte(scenarioYAML))
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(scenario, nil).Router())
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	d := demux.New(nil)
	var mu sync.Mutex
	events := 0
	client, err := transport.Dial(context.Background(), transport.ClientConfig{URL: wsURL},
		func(thread chat.ThreadID, event chat.StreamEvent) {
			d.Ingest(thread, event)
			mu.Lock()
			events++
			mu.Unlock()
		})
	require.NoError(t, err)
	defer client.Close()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return events >= 1
	})

	calls := d.ToolCallsFor("th-1", "call_1")
	require.Len(t, calls, 1)
	assert.Equal(t, chat.ToolCallPending, calls[0].Status)

	// A submit advances the script to the tool result.
	require.NoError(t, client.Submit(context.Background(), "th-1", transport.SubmitRequest{
		StreamSubgraphs: true,
	}))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return events >= 2
	})

	calls = d.ToolCallsFor("th-1", "call_1")
	require.Len(t, calls, 1)
	assert.Equal(t, chat.ToolCallCompleted, calls[0].Status)
	assert.Equal(t, "result", calls[0].Result)
}

func TestInterruptStepReachesQuestionQueue(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
steps:
  - trigger: connect
    events:
      - id: i1
        thread: th-1
        checkpoint: {checkpoint_id: cp-1}
        interrupt:
          questions:
            - id: q-backend
              text: "Use REST or GraphQL?"
              priority: blocking
`))
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(scenario, nil).Router())
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	queue := questions.NewQueue(nil)
	client, err := transport.Dial(context.Background(), transport.ClientConfig{
		URL: wsURL,
		OnInterrupt: func(_ chat.ThreadID, _ chat.Checkpoint, value json.RawMessage) {
			if payload, ok := questions.ParseInterrupt(value); ok {
				queue.AddFromInterrupt(payload)
			}
		},
	}, nil)
	require.NoError(t, err)
	defer client.Close()

	waitFor(t, func() bool { return queue.Len() == 1 })
	assert.False(t, queue.CanProceed())
	question, ok := queue.Get("q-backend")
	require.True(t, ok)
	assert.Equal(t, chat.PriorityBlocking, question.Priority)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
