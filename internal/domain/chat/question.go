package chat

import (
	"sort"
	"time"
)

// Priority orders how urgently a question needs a human answer. A pending
// blocking question forbids autonomous resumption entirely.
type Priority string

const (
	PriorityBlocking   Priority = "blocking"
	PriorityHigh       Priority = "high"
	PriorityMedium     Priority = "medium"
	PriorityNiceToHave Priority = "nice_to_have"
)

// Rank maps a priority to its sort position; lower surfaces first. Unknown
// priorities sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityBlocking:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityNiceToHave:
		return 3
	default:
		return 4
	}
}

// QuestionStatus is one-way: pending goes to answered or skipped, never back.
type QuestionStatus string

const (
	QuestionPending  QuestionStatus = "pending"
	QuestionAnswered QuestionStatus = "answered"
	QuestionSkipped  QuestionStatus = "skipped"
)

// QuestionOption makes a question multiple-choice.
type QuestionOption struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// Question is one human-answerable item raised by the backend or added
// locally. Context is free-form producer metadata (file, line, branch, skill
// labels, session id, step index).
type Question struct {
	ID         string           `json:"id"`
	Text       string           `json:"text"`
	Priority   Priority         `json:"priority"`
	Confidence float64          `json:"confidence"`
	Status     QuestionStatus   `json:"status"`
	Context    map[string]any   `json:"context,omitempty"`
	Options    []QuestionOption `json:"options,omitempty"`
	Answer     string           `json:"answer,omitempty"`
	Subject    string           `json:"subject,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	AnsweredAt time.Time        `json:"answered_at,omitzero"`
}

// SortByUrgency orders questions in place: priority rank first, then
// ascending confidence (the less confident the agent was, the sooner the
// human should weigh in). The sort is stable so equal questions keep their
// arrival order.
func SortByUrgency(questions []Question) {
	sort.SliceStable(questions, func(i, j int) bool {
		ri, rj := questions[i].Priority.Rank(), questions[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return questions[i].Confidence < questions[j].Confidence
	})
}
