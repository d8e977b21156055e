package match

import (
	"sort"

	"github.com/voicebridge/leadlink/internal/model"
)

// Rank returns the candidates ordered by score descending, ties broken by
// smaller time offset (closer in time wins). The input slice is not mutated.
func Rank(cands []model.MatchCandidate) []model.MatchCandidate {
	ranked := make([]model.MatchCandidate, len(cands))
	copy(ranked, cands)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].TimeOffsetMinutes < ranked[j].TimeOffsetMinutes
	})
	return ranked
}

// SelectBest ranks the candidates and returns the winner if it clears
// minScore. A nil result is the normal "no match found" outcome, not an
// error. minScore <= 0 falls back to DefaultMinScore.
func SelectBest(cands []model.MatchCandidate, minScore int) *model.MatchCandidate {
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	ranked := Rank(cands)
	if len(ranked) == 0 || ranked[0].Score < minScore {
		return nil
	}
	best := ranked[0]
	return &best
}
