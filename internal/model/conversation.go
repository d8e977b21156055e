package model

import "time"

// ConversationStatus is the local lifecycle state of a conversation row.
type ConversationStatus string

const (
	ConversationStatusActive    ConversationStatus = "active"
	ConversationStatusCompleted ConversationStatus = "completed"
	ConversationStatusFailed    ConversationStatus = "failed"
)

// StatusFromRemote maps the voice platform's status strings onto the local
// conversation status set. Unknown values are treated as failed so they
// surface in the dashboard rather than disappearing.
func StatusFromRemote(remote string) ConversationStatus {
	switch remote {
	case "done", "completed", "ended":
		return ConversationStatusCompleted
	case "in-progress", "processing", "active":
		return ConversationStatusActive
	default:
		return ConversationStatusFailed
	}
}

// ConversationRecord is the persisted local row for a platform conversation.
// ExternalID is the platform's conversation id and carries a unique
// constraint, so concurrent webhook deliveries for the same call collapse
// into one row.
type ConversationRecord struct {
	ID         string             `json:"id"`
	ExternalID string             `json:"external_id"`
	Status     ConversationStatus `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
}
