package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicebridge/leadlink/internal/model"
	"github.com/voicebridge/leadlink/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func leadColumns() []string {
	return []string{"id", "contact_name", "contact_phone", "source", "conversation_id", "created_at", "updated_at"}
}

func TestPostgresStore_CreateLead(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO leads`).
		WithArgs(pgxmock.AnyArg(), "Ivan Petrov", "+375291234567", "webhook", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	lead, err := s.CreateLead(context.Background(), "Ivan Petrov", "+375291234567", model.LeadSourceWebhook)
	require.NoError(t, err)
	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, "Ivan Petrov", lead.ContactName)
	assert.Equal(t, model.LeadSourceWebhook, lead.Source)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BulkImportLeads(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"leads"},
		[]string{"id", "contact_name", "contact_phone", "source", "created_at", "updated_at"}).
		WillReturnResult(2)

	n, err := s.BulkImportLeads(context.Background(), []model.Lead{
		{ContactName: "Ivan Petrov", ContactPhone: "+375291234567"},
		{ContactName: "Anna", ContactPhone: "+375447654321", Source: model.LeadSourceWebhook},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BulkImportLeads_Empty(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	n, err := s.BulkImportLeads(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPostgresStore_CreateLead_DefaultSource(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO leads`).
		WithArgs(pgxmock.AnyArg(), "Anna", "+375447654321", "webhook", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	lead, err := s.CreateLead(context.Background(), "Anna", "+375447654321", "")
	require.NoError(t, err)
	assert.Equal(t, model.LeadSourceWebhook, lead.Source)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLead_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, contact_name, contact_phone, source, conversation_id, created_at, updated_at FROM leads WHERE id = \$1`).
		WithArgs("nonexistent-lead").
		WillReturnError(pgx.ErrNoRows)

	lead, err := s.GetLead(context.Background(), "nonexistent-lead")
	require.NoError(t, err)
	assert.Nil(t, lead)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLead_Linked(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	convID := "conv-local-1"
	mock.ExpectQuery(`SELECT id, contact_name, contact_phone, source, conversation_id, created_at, updated_at FROM leads`).
		WithArgs("lead-1").
		WillReturnRows(pgxmock.NewRows(leadColumns()).
			AddRow("lead-1", "Ivan Petrov", "+375291234567", "widget", &convID, now, now))

	lead, err := s.GetLead(context.Background(), "lead-1")
	require.NoError(t, err)
	require.NotNil(t, lead)
	assert.Equal(t, "conv-local-1", lead.ConversationID)
	assert.True(t, lead.Linked())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListLeads_UnlinkedFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM leads WHERE true AND conversation_id IS NULL ORDER BY created_at DESC LIMIT \$1`).
		WithArgs(100).
		WillReturnRows(pgxmock.NewRows(leadColumns()).
			AddRow("lead-1", "Ivan", "+375291234567", "webhook", (*string)(nil), now, now).
			AddRow("lead-2", "Anna", "+375447654321", "widget", (*string)(nil), now, now))

	unlinked := false
	leads, err := s.ListLeads(context.Background(), LeadFilter{Linked: &unlinked})
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.False(t, leads[0].Linked())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListLeads_SourceAndPaging(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM leads WHERE true AND source = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("widget", 10, 20).
		WillReturnRows(pgxmock.NewRows(leadColumns()).
			AddRow("lead-3", "Maria", "+375251112233", "widget", (*string)(nil), now, now))

	leads, err := s.ListLeads(context.Background(), LeadFilter{Source: model.LeadSourceWidget, Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, model.LeadSourceWidget, leads[0].Source)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LinkLead(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE leads SET conversation_id = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs("conv-local-1", pgxmock.AnyArg(), "lead-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.LinkLead(context.Background(), "lead-1", "conv-local-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LinkLead_MissingLead(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE leads SET conversation_id`).
		WithArgs("conv-local-1", pgxmock.AnyArg(), "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.LinkLead(context.Background(), "ghost", "conv-local-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lead not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LookupOrCreateConversation_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`INSERT INTO conversations .+ ON CONFLICT \(external_id\) DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), "ext-conv-9", "completed", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "external_id", "status", "created_at"}).
			AddRow("local-9", "ext-conv-9", "completed", now))

	rec, err := s.LookupOrCreateConversation(context.Background(), "ext-conv-9", model.ConversationStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, "local-9", rec.ID)
	assert.Equal(t, "ext-conv-9", rec.ExternalID)
	assert.Equal(t, model.ConversationStatusCompleted, rec.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnqueueDLQ(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO dead_letter_queue`).
		WithArgs(pgxmock.AnyArg(), "lead-1", "voice api down", "transient",
			0, 5, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	entry := resilience.NewDLQEntry("lead-1", errors.New("voice api down"), 5)
	entry.ErrorType = "transient"
	err := s.EnqueueDLQ(context.Background(), entry)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DequeueDLQ_Filtered(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`FROM dead_letter_queue\s+WHERE next_retry_at <= now\(\) AND retry_count < max_retries AND error_type = \$1`).
		WithArgs("transient", 100).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "lead_id", "error", "error_type", "retry_count", "max_retries",
			"next_retry_at", "created_at", "last_failed_at",
		}).AddRow("dlq-1", "lead-1", "timeout", "transient", 1, 5, now, now, now))

	entries, err := s.DequeueDLQ(context.Background(), resilience.DLQFilter{ErrorType: "transient"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "lead-1", entries[0].LeadID)
	assert.True(t, entries[0].CanRetry())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IncrementDLQRetry_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE dead_letter_queue`).
		WithArgs(pgxmock.AnyArg(), "still failing", "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.IncrementDLQRetry(context.Background(), "ghost", time.Now(), "still failing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dlq entry not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS conversations`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMigration_Schema(t *testing.T) {
	assert.Contains(t, postgresMigration, "external_id TEXT NOT NULL UNIQUE")
	assert.Contains(t, postgresMigration, "REFERENCES conversations(id)")
	assert.Contains(t, postgresMigration, "idx_leads_conversation_id")
}
