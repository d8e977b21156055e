package model

import "time"

// LeadSource describes where a lead record originated.
type LeadSource string

const (
	LeadSourceWebhook LeadSource = "webhook"
	LeadSourceWidget  LeadSource = "widget"
	LeadSourceManual  LeadSource = "manual"
)

// Lead is a captured contact waiting to be reconciled with a call.
type Lead struct {
	ID             string     `json:"id"`
	ContactName    string     `json:"contact_name"`
	ContactPhone   string     `json:"contact_phone"`
	Source         LeadSource `json:"source,omitempty"`
	ConversationID string     `json:"conversation_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Linked reports whether the lead already points at a conversation.
func (l Lead) Linked() bool {
	return l.ConversationID != ""
}

// LinkResult is the outcome of one matching run for a lead.
type LinkResult struct {
	LeadID         string           `json:"lead_id"`
	Matched        bool             `json:"matched"`
	ConversationID string           `json:"conversation_id,omitempty"`
	Score          int              `json:"score,omitempty"`
	Candidates     []MatchCandidate `json:"candidates,omitempty"`
	SearchCriteria SearchCriteria   `json:"search_criteria"`
}

// SearchCriteria echoes what the matcher looked for, returned to callers
// on both match and no-match outcomes.
type SearchCriteria struct {
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	CreatedAt  time.Time `json:"created_at"`
	WindowMins int       `json:"window_minutes"`
	Examined   int       `json:"conversations_examined"`
}

// MatchCandidate is a scored (conversation, payload) pair produced during
// one matching run. Candidates are immutable once created; the ranker only
// reads and sorts them.
type MatchCandidate struct {
	ConversationID    string      `json:"conversation_id"`
	Score             int         `json:"score"`
	TimeOffsetMinutes int         `json:"time_offset_minutes"`
	Payload           LeadPayload `json:"payload"`
}

// LeadPayload is the normalized shape of a lead-submission tool call's
// arguments. External payloads arrive with inconsistent key casing and
// sometimes double-encoded JSON; the transcript extractor flattens all of
// that into this one shape before scoring.
type LeadPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}
