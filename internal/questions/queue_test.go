package questions

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom/internal/domain/chat"
)

func TestAddDefaultsAndGeneratedID(t *testing.T) {
	q := NewQueue(nil)
	questionID := q.Add("Use REST or GraphQL?")
	require.NotEmpty(t, questionID)

	question, ok := q.Get(questionID)
	require.True(t, ok)
	assert.Equal(t, chat.PriorityMedium, question.Priority)
	assert.Equal(t, 0.5, question.Confidence)
	assert.Equal(t, chat.QuestionPending, question.Status)
	assert.False(t, question.CreatedAt.IsZero())
}

func TestAddUniqueIDs(t *testing.T) {
	q := NewQueue(nil)
	ids := make(map[string]bool)
	for i := 0; i < 20; i++ {
		ids[q.Add(fmt.Sprintf("q%d", i))] = true
	}
	assert.Len(t, ids, 20)
}

func TestCanProceedOnlyBlockedByBlockingPriority(t *testing.T) {
	q := NewQueue(nil)
	assert.True(t, q.CanProceed(), "empty queue must not block")

	q.Add("minor", WithPriority(chat.PriorityNiceToHave))
	q.Add("major", WithPriority(chat.PriorityHigh))
	assert.True(t, q.CanProceed())

	blocking := q.Add("gate", WithPriority(chat.PriorityBlocking))
	assert.False(t, q.CanProceed())
	assert.Equal(t, 1, q.BlockingCount())

	q.Answer(blocking, "yes")
	assert.True(t, q.CanProceed())
	assert.Equal(t, 0, q.BlockingCount())
}

func TestAnswerBlockingQuestionResumes(t *testing.T) {
	q := NewQueue(nil)
	var resumes []map[string]string
	q.OnResume(func(answers map[string]string) { resumes = append(resumes, answers) })

	questionID := q.Add("Use REST or GraphQL?", WithPriority(chat.PriorityBlocking))
	assert.False(t, q.CanProceed())

	require.True(t, q.Answer(questionID, "REST"))
	assert.True(t, q.CanProceed())
	assert.Equal(t, map[string]string{questionID: "REST"}, q.AllAnswers())

	require.Len(t, resumes, 1, "resume notification fires exactly once")
	assert.Equal(t, map[string]string{questionID: "REST"}, resumes[0])
}

func TestAnswerWhileBlockingRemainsDoesNotResume(t *testing.T) {
	q := NewQueue(nil)
	fired := 0
	q.OnResume(func(map[string]string) { fired++ })

	first := q.Add("gate one", WithPriority(chat.PriorityBlocking))
	second := q.Add("gate two", WithPriority(chat.PriorityBlocking))

	q.Answer(first, "a")
	assert.Equal(t, 0, fired, "a blocking question is still pending")

	q.Answer(second, "b")
	assert.Equal(t, 1, fired)
}

func TestResumeMappingExcludesSkippedAndEmptyAnswers(t *testing.T) {
	q := NewQueue(nil)
	var got map[string]string
	q.OnResume(func(answers map[string]string) { got = answers })

	skipped := q.Add("optional", WithPriority(chat.PriorityNiceToHave))
	answered := q.Add("real", WithPriority(chat.PriorityMedium))
	blocking := q.Add("gate", WithPriority(chat.PriorityBlocking))

	q.Skip(skipped)
	q.Answer(answered, "forty-two")
	require.Nil(t, got, "blocking question still pending")

	q.Answer(blocking, "go")
	require.NotNil(t, got)
	assert.Equal(t, map[string]string{answered: "forty-two", blocking: "go"}, got)
	_, hasSkipped := got[skipped]
	assert.False(t, hasSkipped)
}

func TestAnswerCallbackFiresPerAnswer(t *testing.T) {
	q := NewQueue(nil)
	var seen []string
	q.OnAnswered(func(question chat.Question) { seen = append(seen, question.Answer) })

	a := q.Add("first")
	b := q.Add("second")
	q.Answer(a, "one")
	q.Answer(b, "two")
	assert.Equal(t, []string{"one", "two"}, seen)
}

func TestStatusTransitionsAreOneWay(t *testing.T) {
	q := NewQueue(nil)
	questionID := q.Add("once")

	require.True(t, q.Answer(questionID, "first"))
	assert.False(t, q.Answer(questionID, "second"), "answering an answered question is a no-op")
	assert.False(t, q.Skip(questionID), "skipping an answered question is a no-op")

	question, _ := q.Get(questionID)
	assert.Equal(t, "first", question.Answer)

	skipID := q.Add("skipped")
	require.True(t, q.Skip(skipID))
	assert.False(t, q.Answer(skipID, "late"), "answering a skipped question is a no-op")
	question, _ = q.Get(skipID)
	assert.Equal(t, chat.QuestionSkipped, question.Status)
	assert.Empty(t, question.Answer)
	assert.False(t, question.AnsweredAt.IsZero())
}

func TestSkipDoesNotAutoResume(t *testing.T) {
	q := NewQueue(nil)
	fired := 0
	q.OnResume(func(map[string]string) { fired++ })

	q.Add("answered earlier", WithPriority(chat.PriorityMedium))
	blocking := q.Add("gate", WithPriority(chat.PriorityBlocking))

	// Skipping the last blocking question clears the predicate but must
	// not fire the resume notification.
	require.True(t, q.Skip(blocking))
	assert.True(t, q.CanProceed())
	assert.Equal(t, 0, fired)
}

func TestSkipScenario(t *testing.T) {
	q := NewQueue(nil)
	blocking := q.Add("gate", WithPriority(chat.PriorityBlocking))
	nice := q.Add("bonus", WithPriority(chat.PriorityNiceToHave))

	require.True(t, q.Skip(nice))
	assert.False(t, q.CanProceed())

	require.True(t, q.Skip(blocking))
	assert.True(t, q.CanProceed())
}

func TestUnansweredBlocking(t *testing.T) {
	q := NewQueue(nil)
	blocking := q.Add("gate", WithPriority(chat.PriorityBlocking))
	q.Add("minor")

	got := q.UnansweredBlocking()
	require.Len(t, got, 1)
	assert.Equal(t, blocking, got[0].ID)

	q.Answer(blocking, "done")
	assert.Empty(t, q.UnansweredBlocking())
}

func TestPendingOrderedByUrgency(t *testing.T) {
	q := NewQueue(nil)
	q.Add("medium sure", WithPriority(chat.PriorityMedium), WithConfidence(0.9))
	q.Add("blocking unsure", WithPriority(chat.PriorityBlocking), WithConfidence(0.3))
	q.Add("blocking sure", WithPriority(chat.PriorityBlocking), WithConfidence(0.8))

	pending := q.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, "blocking unsure", pending[0].Text)
	assert.Equal(t, "blocking sure", pending[1].Text)
	assert.Equal(t, "medium sure", pending[2].Text)
}

func TestClearAnsweredKeepsOnlyPending(t *testing.T) {
	q := NewQueue(nil)
	answered := q.Add("answered")
	skipped := q.Add("skipped")
	pending := q.Add("pending")

	q.Answer(answered, "x")
	q.Skip(skipped)
	q.ClearAnswered()

	assert.Equal(t, 1, q.Len())
	_, ok := q.Get(pending)
	assert.True(t, ok)
	_, ok = q.Get(answered)
	assert.False(t, ok)
}

func TestResetEmptiesEverything(t *testing.T) {
	q := NewQueue(nil)
	q.Add("one")
	questionID := q.Add("two", WithPriority(chat.PriorityBlocking))
	q.Answer(questionID, "x")

	q.Reset()
	assert.Equal(t, 0, q.Len())
	assert.True(t, q.CanProceed())
	assert.Empty(t, q.AllAnswers())
}

func TestResumeCallbackMayReenterQueue(t *testing.T) {
	q := NewQueue(nil)
	q.OnResume(func(map[string]string) {
		// Re-entrant mutation must not deadlock or corrupt the set.
		q.ClearAnswered()
	})
	questionID := q.Add("gate", WithPriority(chat.PriorityBlocking))
	q.Answer(questionID, "ok")
	assert.Equal(t, 0, q.Len())
}
