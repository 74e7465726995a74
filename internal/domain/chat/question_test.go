package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityRankOrdering(t *testing.T) {
	assert.Less(t, PriorityBlocking.Rank(), PriorityHigh.Rank())
	assert.Less(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityNiceToHave.Rank())
	assert.Greater(t, Priority("bogus").Rank(), PriorityNiceToHave.Rank())
}

func TestSortByUrgencyPriorityThenConfidence(t *testing.T) {
	questions := []Question{
		{ID: "q1", Priority: PriorityMedium, Confidence: 0.9},
		{ID: "q2", Priority: PriorityBlocking, Confidence: 0.8},
		{ID: "q3", Priority: PriorityBlocking, Confidence: 0.2},
		{ID: "q4", Priority: PriorityNiceToHave, Confidence: 0.1},
	}
	SortByUrgency(questions)

	got := make([]string, len(questions))
	for i, q := range questions {
		got[i] = q.ID
	}
	assert.Equal(t, []string{"q3", "q2", "q1", "q4"}, got)
}

func TestSortByUrgencyIsStable(t *testing.T) {
	questions := []Question{
		{ID: "first", Priority: PriorityHigh, Confidence: 0.5},
		{ID: "second", Priority: PriorityHigh, Confidence: 0.5},
	}
	SortByUrgency(questions)
	assert.Equal(t, "first", questions[0].ID)
}
