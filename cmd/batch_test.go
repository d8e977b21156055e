package main

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voicebridge/leadlink/internal/config"
	"github.com/voicebridge/leadlink/internal/match"
	"github.com/voicebridge/leadlink/internal/model"
	"github.com/voicebridge/leadlink/internal/resilience"
	"github.com/voicebridge/leadlink/internal/store"
	"github.com/voicebridge/leadlink/pkg/voiceapi"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type stubVoice struct {
	listErr error
}

func (s *stubVoice) ListConversations(_ context.Context, _ ...voiceapi.ListOption) (*voiceapi.ListResponse, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return &voiceapi.ListResponse{}, nil
}

func (s *stubVoice) GetConversation(_ context.Context, id string) (*voiceapi.Conversation, error) {
	return nil, eris.Errorf("voiceapi: conversation not found: %s", id)
}

type stubStore struct {
	dlq []resilience.DLQEntry
}

func (s *stubStore) CreateLead(_ context.Context, name, phone string, source model.LeadSource) (*model.Lead, error) {
	return &model.Lead{ID: "new", ContactName: name, ContactPhone: phone, Source: source}, nil
}

func (s *stubStore) GetLead(_ context.Context, _ string) (*model.Lead, error) { return nil, nil }

func (s *stubStore) ListLeads(_ context.Context, _ store.LeadFilter) ([]model.Lead, error) {
	return nil, nil
}

func (s *stubStore) BulkImportLeads(_ context.Context, leads []model.Lead) (int64, error) {
	return int64(len(leads)), nil
}

func (s *stubStore) LinkLead(_ context.Context, _, _ string) error { return nil }

func (s *stubStore) LookupOrCreateConversation(_ context.Context, externalID string, status model.ConversationStatus) (*model.ConversationRecord, error) {
	return &model.ConversationRecord{ID: "local", ExternalID: externalID, Status: status}, nil
}

func (s *stubStore) EnqueueDLQ(_ context.Context, entry resilience.DLQEntry) error {
	s.dlq = append(s.dlq, entry)
	return nil
}

func (s *stubStore) DequeueDLQ(_ context.Context, _ resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	return nil, nil
}

func (s *stubStore) IncrementDLQRetry(_ context.Context, _ string, _ time.Time, _ string) error {
	return nil
}

func (s *stubStore) RemoveDLQ(_ context.Context, _ string) error { return nil }
func (s *stubStore) CountDLQ(_ context.Context) (int, error)     { return len(s.dlq), nil }
func (s *stubStore) Migrate(_ context.Context) error             { return nil }
func (s *stubStore) Close() error                                { return nil }

func testEnv(voice voiceapi.Client, st store.Store) *linkEnv {
	return &linkEnv{
		Store:  st,
		Voice:  voice,
		Linker: match.NewLinker(voice, st, config.MatchConfig{DetailDelayMillis: 1}),
	}
}

func withTestConfig(t *testing.T) {
	t.Helper()
	old := cfg
	cfg = &config.Config{Batch: config.BatchConfig{MaxConcurrentLeads: 2, MaxDLQRetries: 3}}
	t.Cleanup(func() { cfg = old })
}

func TestProcessBatch_Empty(t *testing.T) {
	withTestConfig(t)
	env := testEnv(&stubVoice{}, &stubStore{})

	require.NoError(t, processBatch(context.Background(), env, nil, 2))
}

func TestProcessBatch_UnmatchedLeadsDoNotFail(t *testing.T) {
	withTestConfig(t)
	st := &stubStore{}
	env := testEnv(&stubVoice{}, st)

	leads := []model.Lead{
		{ID: "a", CreatedAt: time.Now().UTC()},
		{ID: "b", CreatedAt: time.Now().UTC()},
	}

	require.NoError(t, processBatch(context.Background(), env, leads, 2))
	assert.Empty(t, st.dlq)
}

func TestProcessBatch_FailuresLandInDLQ(t *testing.T) {
	withTestConfig(t)
	st := &stubStore{}
	env := testEnv(&stubVoice{listErr: eris.New("bad api key")}, st)

	leads := []model.Lead{{ID: "a", CreatedAt: time.Now().UTC()}}

	require.NoError(t, processBatch(context.Background(), env, leads, 1))
	require.Len(t, st.dlq, 1)
	assert.Equal(t, "a", st.dlq[0].LeadID)
	assert.Equal(t, "permanent", st.dlq[0].ErrorType)
	assert.Equal(t, 3, st.dlq[0].MaxRetries)
}
