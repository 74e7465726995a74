package questions

import (
	"sort"

	"loom/internal/domain/chat"
)

// DefaultSubject buckets pending questions whose producer supplied no
// topical label.
const DefaultSubject = "general"

// SubjectGroup is one topical bucket of pending questions, ordered by
// urgency within the bucket.
type SubjectGroup struct {
	Subject   string
	Questions []chat.Question
}

// Subjects groups the pending questions into topical buckets for display.
// Buckets are ordered by their most urgent member (priority rank, then
// ascending confidence), so the bucket holding the next question to surface
// comes first. Derived entirely from the pending view; recomputed per call.
func (q *Queue) Subjects() []SubjectGroup {
	pending := q.Pending()
	if len(pending) == 0 {
		return nil
	}

	bysubject := make(map[string]*SubjectGroup)
	order := make([]*SubjectGroup, 0)
	for _, question := range pending {
		subject := question.Subject
		if subject == "" {
			subject = DefaultSubject
		}
		group, ok := bysubject[subject]
		if !ok {
			group = &SubjectGroup{Subject: subject}
			bysubject[subject] = group
			order = append(order, group)
		}
		group.Questions = append(group.Questions, question)
	}

	// Pending() is already urgency-sorted, so each bucket's head is its
	// most urgent member and buckets were appended in head order.
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i].Questions[0], order[j].Questions[0]
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra < rb
		}
		return a.Confidence < b.Confidence
	})

	out := make([]SubjectGroup, len(order))
	for i, group := range order {
		out[i] = *group
	}
	return out
}
