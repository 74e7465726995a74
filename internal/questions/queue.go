// Package questions owns the set of human-answerable questions raised by the
// backend and decides, after every answer, whether autonomous progress may
// resume. A pending blocking question gates resumption for the whole
// session.
package questions

import (
	"sync"
	"time"

	"loom/internal/domain/chat"
	"loom/internal/logging"
	"loom/internal/utils/id"
)

// AnsweredFunc is invoked once per answered question.
type AnsweredFunc func(chat.Question)

// ResumeFunc receives the id→answer mapping of every answered question with
// a non-empty answer, once no pending blocking question remains.
type ResumeFunc func(answers map[string]string)

// Queue is the authoritative in-memory question set. All mutation goes
// through it; consumers only read derived views, which are recomputed on
// every call rather than cached.
type Queue struct {
	mu        sync.Mutex
	questions []chat.Question

	onAnswered AnsweredFunc
	onResume   ResumeFunc

	logger logging.Logger
	now    func() time.Time
	newID  func() string
}

// NewQueue constructs an empty queue.
func NewQueue(logger logging.Logger) *Queue {
	return &Queue{
		logger: logging.OrNop(logger),
		now:    time.Now,
		newID:  id.NewQuestionID,
	}
}

// OnAnswered registers the per-answer notification callback.
func (q *Queue) OnAnswered(fn AnsweredFunc) { q.onAnswered = fn }

// OnResume registers the resume notification callback. It fires after the
// queue's state has fully settled, never while a mutation is in progress, so
// the callback may safely call back into the queue.
func (q *Queue) OnResume(fn ResumeFunc) { q.onResume = fn }

// AddOption customizes a question added through Add.
type AddOption func(*chat.Question)

// WithPriority overrides the default medium priority.
func WithPriority(p chat.Priority) AddOption {
	return func(q *chat.Question) { q.Priority = p }
}

// WithConfidence overrides the default 0.5 confidence.
func WithConfidence(c float64) AddOption {
	return func(q *chat.Question) { q.Confidence = c }
}

// WithContext attaches free-form producer metadata.
func WithContext(ctx map[string]any) AddOption {
	return func(q *chat.Question) { q.Context = ctx }
}

// WithOptions makes the question multiple-choice.
func WithOptions(opts ...chat.QuestionOption) AddOption {
	return func(q *chat.Question) { q.Options = opts }
}

// WithSubject attaches the agent-supplied topical label.
func WithSubject(subject string) AddOption {
	return func(q *chat.Question) { q.Subject = subject }
}

// Add appends a fresh pending question and returns its generated id.
func (q *Queue) Add(text string, opts ...AddOption) string {
	question := chat.Question{
		ID:         q.newID(),
		Text:       text,
		Priority:   chat.PriorityMedium,
		Confidence: 0.5,
		Status:     chat.QuestionPending,
		CreatedAt:  q.now(),
	}
	for _, opt := range opts {
		opt(&question)
	}

	q.mu.Lock()
	q.questions = append(q.questions, question)
	q.mu.Unlock()

	q.logger.Debug("question added: %s (%s)", question.ID, question.Priority)
	return question.ID
}

// Answer transitions a pending question to answered, stamping the answer and
// timestamp. It reports whether a transition happened; answering an unknown,
// answered or skipped question is a no-op. After the state settles, the
// resume callback fires iff no pending blocking question remains and at
// least one question anywhere holds a non-empty answer.
func (q *Queue) Answer(questionID, answer string) bool {
	var answered chat.Question
	var resume map[string]string

	q.mu.Lock()
	idx := q.indexLocked(questionID)
	if idx < 0 || q.questions[idx].Status != chat.QuestionPending {
		q.mu.Unlock()
		return false
	}
	q.questions[idx].Status = chat.QuestionAnswered
	q.questions[idx].Answer = answer
	q.questions[idx].AnsweredAt = q.now()
	answered = q.questions[idx]

	// Two-phase: decide on the fully settled state, fire after unlock.
	if !q.hasPendingBlockingLocked() {
		if all := q.allAnswersLocked(); len(all) > 0 {
			resume = all
		}
	}
	q.mu.Unlock()

	if q.onAnswered != nil {
		q.onAnswered(answered)
	}
	if resume != nil && q.onResume != nil {
		q.logger.Info("no blocking questions pending, resuming with %d answer(s)", len(resume))
		q.onResume(resume)
	}
	return true
}

// Skip transitions a pending question to skipped. Skipping deliberately does
// not re-evaluate the resume predicate: skip must never auto-resume the run.
func (q *Queue) Skip(questionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.indexLocked(questionID)
	if idx < 0 || q.questions[idx].Status != chat.QuestionPending {
		return false
	}
	q.questions[idx].Status = chat.QuestionSkipped
	q.questions[idx].AnsweredAt = q.now()
	return true
}

// ClearAnswered drops every non-pending question.
func (q *Queue) ClearAnswered() {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.questions[:0]
	for _, question := range q.questions {
		if question.Status == chat.QuestionPending {
			kept = append(kept, question)
		}
	}
	q.questions = kept
}

// Reset empties the set entirely. This is the only way a question is
// destroyed; going terminal keeps it around for display.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.questions = nil
}

// Pending returns pending questions in urgency order: priority rank, then
// ascending confidence.
func (q *Queue) Pending() []chat.Question {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []chat.Question
	for _, question := range q.questions {
		if question.Status == chat.QuestionPending {
			out = append(out, question)
		}
	}
	chat.SortByUrgency(out)
	return out
}

// Resolved returns questions that have left the pending state, answered and
// skipped alike, in arrival order.
func (q *Queue) Resolved() []chat.Question {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []chat.Question
	for _, question := range q.questions {
		if question.Status != chat.QuestionPending {
			out = append(out, question)
		}
	}
	return out
}

// UnansweredBlocking returns the pending blocking questions.
func (q *Queue) UnansweredBlocking() []chat.Question {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []chat.Question
	for _, question := range q.questions {
		if question.Status == chat.QuestionPending && question.Priority == chat.PriorityBlocking {
			out = append(out, question)
		}
	}
	return out
}

// AllAnswers maps every answered question's id to its answer. Skipped
// questions never contribute.
func (q *Queue) AllAnswers() map[string]string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.allAnswersLocked()
}

// CanProceed reports whether autonomous progress may resume: true iff no
// pending question has blocking priority.
func (q *Queue) CanProceed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.hasPendingBlockingLocked()
}

// BlockingCount counts pending blocking questions.
func (q *Queue) BlockingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, question := range q.questions {
		if question.Status == chat.QuestionPending && question.Priority == chat.PriorityBlocking {
			count++
		}
	}
	return count
}

// Len returns the total number of questions, any status.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.questions)
}

// Get looks a question up by id.
func (q *Queue) Get(questionID string) (chat.Question, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.indexLocked(questionID)
	if idx < 0 {
		return chat.Question{}, false
	}
	return q.questions[idx], true
}

func (q *Queue) indexLocked(questionID string) int {
	for i, question := range q.questions {
		if question.ID == questionID {
			return i
		}
	}
	return -1
}

func (q *Queue) hasPendingBlockingLocked() bool {
	for _, question := range q.questions {
		if question.Status == chat.QuestionPending && question.Priority == chat.PriorityBlocking {
			return true
		}
	}
	return false
}

func (q *Queue) allAnswersLocked() map[string]string {
	answers := make(map[string]string)
	for _, question := range q.questions {
		if question.Status == chat.QuestionAnswered && question.Answer != "" {
			answers[question.ID] = question.Answer
		}
	}
	return answers
}

func (q *Queue) containsLocked(questionID string) bool {
	return q.indexLocked(questionID) >= 0
}
