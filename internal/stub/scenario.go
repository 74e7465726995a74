// Package stub is a scripted stand-in for the real multi-agent backend. It
// speaks the full wire contract — websocket event stream in one direction,
// submit/resume/goto/patch/stop commands in the other — by playing back a
// YAML scenario. It exists for local development and end-to-end transport
// tests; it never runs a real agent.
package stub

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"loom/internal/domain/chat"
)

// Trigger names the inbound command a step waits for.
type Trigger string

const (
	// TriggerConnect fires as soon as the websocket is established.
	TriggerConnect Trigger = "connect"
	TriggerSubmit  Trigger = "submit"
	TriggerPatch   Trigger = "patch_state"
	TriggerStop    Trigger = "stop"
)

// Scenario is an ordered script: each step waits for its trigger, then
// emits its events. Steps sharing a trigger are consumed in order, one per
// occurrence.
type Scenario struct {
	Steps []Step `yaml:"steps"`
}

// Step is one trigger→events pairing.
type Step struct {
	Trigger Trigger         `yaml:"trigger"`
	Events  []ScriptedEvent `yaml:"events"`
}

// ScriptedEvent is one stream event or interrupt in scenario form. Data and
// Interrupt are arbitrary YAML re-encoded as JSON on the wire; a non-empty
// Interrupt makes this an interrupt frame instead of a stream event.
type ScriptedEvent struct {
	ID         string         `yaml:"id"`
	Thread     chat.ThreadID  `yaml:"thread"`
	Kind       chat.EventKind `yaml:"kind"`
	Namespace  []string       `yaml:"namespace"`
	Data       map[string]any `yaml:"data"`
	Interrupt  map[string]any `yaml:"interrupt"`
	Checkpoint map[string]any `yaml:"checkpoint"`
}

// wireFrame converts a scripted event into its outbound JSON frame.
func (e ScriptedEvent) wireFrame() ([]byte, error) {
	if len(e.Interrupt) > 0 {
		return json.Marshal(map[string]any{
			"id":         e.ID,
			"type":       "interrupt",
			"thread_id":  e.Thread,
			"interrupt":  e.Interrupt,
			"checkpoint": e.Checkpoint,
		})
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("encode scripted data: %w", err)
	}
	return json.Marshal(map[string]any{
		"id":        e.ID,
		"type":      "event",
		"thread_id": e.Thread,
		"event": chat.StreamEvent{
			Kind:      e.Kind,
			Namespace: e.Namespace,
			Data:      data,
		},
	})
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(raw)
}

// ParseScenario decodes scenario YAML.
func ParseScenario(raw []byte) (Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(raw, &scenario); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario: %w", err)
	}
	for i, step := range scenario.Steps {
		if step.Trigger == "" {
			return Scenario{}, fmt.Errorf("step %d: missing trigger", i)
		}
	}
	return scenario, nil
}
