package resilience

import (
	"time"
)

// DLQEntry records a lead whose link attempt failed and can be retried later.
type DLQEntry struct {
	ID           string    `json:"id"`
	LeadID       string    `json:"lead_id"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"` // "transient" or "permanent"
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	NextRetryAt  time.Time `json:"next_retry_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// DLQFilter specifies criteria for querying the dead letter queue.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"` // "transient", "permanent", or "" for all
	Limit     int    `json:"limit,omitempty"`
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}

// NewDLQEntry builds a fresh queue entry for a failed link attempt. The first
// retry is scheduled one backoff step out from now.
func NewDLQEntry(leadID string, cause error, maxRetries int) DLQEntry {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	now := time.Now().UTC()
	return DLQEntry{
		LeadID:       leadID,
		Error:        cause.Error(),
		ErrorType:    ClassifyError(cause),
		MaxRetries:   maxRetries,
		NextRetryAt:  now.Add(DefaultRetryConfig().Backoff(0)),
		CreatedAt:    now,
		LastFailedAt: now,
	}
}
