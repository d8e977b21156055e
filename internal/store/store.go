package store

import (
	"context"
	"time"

	"github.com/voicebridge/leadlink/internal/model"
	"github.com/voicebridge/leadlink/internal/resilience"
)

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	// Linked filters by link state: nil = all, true = linked only,
	// false = unlinked only.
	Linked *bool            `json:"linked,omitempty"`
	Source model.LeadSource `json:"source,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// Store defines the persistence interface for leads and conversation links.
type Store interface {
	// Leads
	CreateLead(ctx context.Context, name, phone string, source model.LeadSource) (*model.Lead, error)
	GetLead(ctx context.Context, leadID string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)

	// BulkImportLeads inserts many leads at once, assigning ids and
	// timestamps to any lead missing them. Returns the number inserted.
	BulkImportLeads(ctx context.Context, leads []model.Lead) (int64, error)

	// LinkLead sets the lead's conversation foreign key. It does not guard
	// against overwriting an existing link; call sites check Linked() first.
	LinkLead(ctx context.Context, leadID, conversationID string) error

	// LookupOrCreateConversation upserts the local row for a platform
	// conversation by external id. Idempotent: concurrent calls for the
	// same external id resolve to one row.
	LookupOrCreateConversation(ctx context.Context, externalID string, status model.ConversationStatus) (*model.ConversationRecord, error)

	// Dead letter queue for failed link attempts.
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
