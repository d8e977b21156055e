package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestDLQEntry_CanRetry(t *testing.T) {
	e := DLQEntry{RetryCount: 2, MaxRetries: 5}
	if !e.CanRetry() {
		t.Error("entry below max retries should be retryable")
	}

	e.RetryCount = 5
	if e.CanRetry() {
		t.Error("entry at max retries should not be retryable")
	}
}

func TestClassifyError(t *testing.T) {
	if got := ClassifyError(NewTransientError(errors.New("503"), 503)); got != "transient" {
		t.Errorf("expected transient, got %s", got)
	}
	if got := ClassifyError(errors.New("lead not found")); got != "permanent" {
		t.Errorf("expected permanent, got %s", got)
	}
}

func TestNewDLQEntry(t *testing.T) {
	cause := NewTransientError(errors.New("voice api down"), 503)
	e := NewDLQEntry("lead-1", cause, 0)

	if e.LeadID != "lead-1" {
		t.Errorf("unexpected lead id: %s", e.LeadID)
	}
	if e.ErrorType != "transient" {
		t.Errorf("expected transient, got %s", e.ErrorType)
	}
	if e.MaxRetries != 5 {
		t.Errorf("expected default max retries 5, got %d", e.MaxRetries)
	}
	if e.RetryCount != 0 {
		t.Errorf("fresh entry should have zero retries, got %d", e.RetryCount)
	}
	if !e.NextRetryAt.After(e.CreatedAt) {
		t.Error("first retry should be scheduled after creation")
	}
	if e.NextRetryAt.Sub(e.CreatedAt) > time.Minute {
		t.Errorf("first retry scheduled too far out: %v", e.NextRetryAt.Sub(e.CreatedAt))
	}
}
