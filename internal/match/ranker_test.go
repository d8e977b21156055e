package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicebridge/leadlink/internal/model"
)

func cand(id string, score, offset int) model.MatchCandidate {
	return model.MatchCandidate{ConversationID: id, Score: score, TimeOffsetMinutes: offset}
}

func TestSelectBest(t *testing.T) {
	t.Parallel()

	t.Run("empty list is no match", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, SelectBest(nil, 50))
		assert.Nil(t, SelectBest([]model.MatchCandidate{}, 50))
	})

	t.Run("below threshold is no match", func(t *testing.T) {
		t.Parallel()
		cands := []model.MatchCandidate{cand("a", 40, 5), cand("b", 30, 1)}
		assert.Nil(t, SelectBest(cands, 50))
	})

	t.Run("highest score wins", func(t *testing.T) {
		t.Parallel()
		cands := []model.MatchCandidate{cand("a", 60, 5), cand("b", 100, 30), cand("c", 80, 1)}
		best := SelectBest(cands, 50)
		require.NotNil(t, best)
		assert.Equal(t, "b", best.ConversationID)
	})

	t.Run("ties broken by smaller time offset", func(t *testing.T) {
		t.Parallel()
		cands := []model.MatchCandidate{cand("far", 80, 45), cand("near", 80, 10)}
		best := SelectBest(cands, 50)
		require.NotNil(t, best)
		assert.Equal(t, "near", best.ConversationID)
	})

	t.Run("zero threshold falls back to default", func(t *testing.T) {
		t.Parallel()
		cands := []model.MatchCandidate{cand("a", 49, 5)}
		assert.Nil(t, SelectBest(cands, 0))

		cands = []model.MatchCandidate{cand("a", 50, 5)}
		assert.NotNil(t, SelectBest(cands, 0))
	})
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	cands := []model.MatchCandidate{cand("a", 30, 5), cand("b", 90, 1), cand("c", 60, 2)}
	ranked := Rank(cands)

	require.Len(t, ranked, 3)
	assert.Equal(t, "b", ranked[0].ConversationID)
	assert.Equal(t, "c", ranked[1].ConversationID)
	assert.Equal(t, "a", ranked[2].ConversationID)

	// Input order untouched.
	assert.Equal(t, "a", cands[0].ConversationID)
	assert.Equal(t, "b", cands[1].ConversationID)
}
