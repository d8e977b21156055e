// Package match scores leads against conversation tool-call payloads and
// selects the most plausible linkage.
package match

import (
	"strings"
	"time"

	"github.com/voicebridge/leadlink/internal/model"
	"github.com/voicebridge/leadlink/internal/normalize"
)

const (
	// scoreExact is awarded for an exact name or phone match.
	scoreExact = 50
	// scorePartial is awarded for a substring name match or a last-7-digit
	// phone suffix match.
	scorePartial = 30

	// DefaultMinScore is the acceptance threshold for auto-linking. A single
	// partial signal (30) never clears it; one exact signal (50) does. The
	// value is a business constant, not derived.
	DefaultMinScore = 50

	// DefaultWindow is the hard time pre-filter: conversations further than
	// this from the lead's creation time are never scored.
	DefaultWindow = 2 * time.Hour

	// phoneSuffixLen is how many trailing digits count as a partial phone match.
	phoneSuffixLen = 7
)

// Scorer computes 0-100 confidence scores between a lead's contact data
// and an extracted tool-call payload.
type Scorer struct {
	window time.Duration
}

// NewScorer creates a Scorer with the given time window. A non-positive
// window falls back to DefaultWindow.
func NewScorer(window time.Duration) *Scorer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Scorer{window: window}
}

// Window returns the configured time pre-filter window.
func (s *Scorer) Window() time.Duration {
	return s.window
}

// TimeOffset returns the absolute offset between a lead's creation and a
// conversation's start in whole minutes, and whether the conversation falls
// inside the scoring window. Out-of-window conversations are excluded
// entirely; this is a hard pre-filter, not a score penalty.
func (s *Scorer) TimeOffset(leadCreatedAt, convStart time.Time) (int, bool) {
	offset := leadCreatedAt.Sub(convStart)
	if offset < 0 {
		offset = -offset
	}
	return int(offset / time.Minute), offset <= s.window
}

// Score computes the combined name+phone confidence for a lead against one
// payload. Name: exact case-folded match +50, substring either way +30.
// Phone: equal after normalization +50, shared last-7-digit suffix +30.
// Empty fields contribute nothing, so garbage input degrades the score
// instead of producing an error.
func (s *Scorer) Score(lead model.Lead, payload model.LeadPayload) int {
	return nameScore(lead.ContactName, payload.Name) + phoneScore(lead.ContactPhone, payload.Phone)
}

func nameScore(a, b string) int {
	na, nb := normalize.Name(a), normalize.Name(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return scoreExact
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return scorePartial
	}
	return 0
}

func phoneScore(a, b string) int {
	pa, pb := normalize.Phone(a), normalize.Phone(b)
	if pa == "" || pb == "" {
		return 0
	}
	if pa == pb {
		return scoreExact
	}
	sa := normalize.LastDigits(pa, phoneSuffixLen)
	sb := normalize.LastDigits(pb, phoneSuffixLen)
	if sa == "" || sb == "" {
		return 0
	}
	if strings.Contains(sa, sb) || strings.Contains(sb, sa) {
		return scorePartial
	}
	return 0
}
