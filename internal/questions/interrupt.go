package questions

import (
	"encoding/json"
	"time"

	"loom/internal/domain/chat"
)

// InterruptPayload is the backend→UI question batch carried by a
// question-bearing interrupt. Every field except text is optional.
type InterruptPayload struct {
	Questions []InterruptQuestion `json:"questions"`
}

// InterruptQuestion is the wire form of one incoming question.
type InterruptQuestion struct {
	ID         string                `json:"id,omitempty"`
	Text       string                `json:"text"`
	Priority   chat.Priority         `json:"priority,omitempty"`
	Confidence *float64              `json:"confidence,omitempty"`
	Context    map[string]any        `json:"context,omitempty"`
	Options    []chat.QuestionOption `json:"options,omitempty"`
	Subject    string                `json:"subject,omitempty"`
	CreatedAt  string                `json:"createdAt,omitempty"`
}

// ParseInterrupt decodes a raw interrupt value into a question batch. ok is
// false when the value carries no questions.
func ParseInterrupt(raw json.RawMessage) (InterruptPayload, bool) {
	var payload InterruptPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return InterruptPayload{}, false
	}
	return payload, len(payload.Questions) > 0
}

// AddFromInterrupt appends a batch of backend-raised questions. Backend ids
// are preserved when present, generated otherwise; priority defaults to
// medium and confidence to 0.5. An item whose id already exists in the set
// is dropped silently — no merge, no overwrite. Returns the ids actually
// added.
func (q *Queue) AddFromInterrupt(payload InterruptPayload) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var added []string
	for _, item := range payload.Questions {
		if item.Text == "" {
			continue
		}
		question := chat.Question{
			ID:         item.ID,
			Text:       item.Text,
			Priority:   item.Priority,
			Confidence: 0.5,
			Status:     chat.QuestionPending,
			Context:    item.Context,
			Options:    item.Options,
			Subject:    item.Subject,
			CreatedAt:  q.now(),
		}
		if question.ID == "" {
			question.ID = q.newID()
		}
		if question.Priority == "" {
			question.Priority = chat.PriorityMedium
		}
		if item.Confidence != nil {
			question.Confidence = *item.Confidence
		}
		if item.CreatedAt != "" {
			if ts, err := time.Parse(time.RFC3339, item.CreatedAt); err == nil {
				question.CreatedAt = ts
			}
		}
		if q.containsLocked(question.ID) {
			q.logger.Debug("dropping duplicate question id %s from interrupt batch", question.ID)
			continue
		}
		q.questions = append(q.questions, question)
		added = append(added, question.ID)
	}
	return added
}
