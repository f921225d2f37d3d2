package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReputationScore_MixedReactions(t *testing.T) {
	score := ReputationScore([]Reaction{
		{Name: "+1", Count: 2},
		{Name: "-1", Count: 1},
	})

	assert.Equal(t, 1, score)
}

func TestReputationScore_UnrecognisedNamesIgnored(t *testing.T) {
	score := ReputationScore([]Reaction{
		{Name: "eyes", Count: 5},
		{Name: "party_parrot", Count: 3},
	})

	assert.Equal(t, 0, score)
}

func TestReputationScore_NegativeResult(t *testing.T) {
	score := ReputationScore([]Reaction{
		{Name: "heart", Count: 1},
		{Name: "thumbsdown", Count: 3},
	})

	assert.Equal(t, -2, score)
}

func TestReputationScore_Empty(t *testing.T) {
	assert.Equal(t, 0, ReputationScore(nil))
}

func TestReactionSets_Disjoint(t *testing.T) {
	for name := range positiveReactions {
		_, inNegative := negativeReactions[name]
		assert.False(t, inNegative, "reaction %q appears in both sets", name)
	}
}
