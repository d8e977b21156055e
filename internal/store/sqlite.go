package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/voicebridge/leadlink/internal/model"
	"github.com/voicebridge/leadlink/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for local
// development and tests; production deployments use Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS conversations (
	id          TEXT PRIMARY KEY,
	external_id TEXT NOT NULL UNIQUE,
	status      TEXT NOT NULL DEFAULT 'completed',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS leads (
	id              TEXT PRIMARY KEY,
	contact_name    TEXT NOT NULL,
	contact_phone   TEXT NOT NULL,
	source          TEXT NOT NULL DEFAULT 'webhook',
	conversation_id TEXT REFERENCES conversations(id),
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	lead_id        TEXT NOT NULL REFERENCES leads(id),
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 5,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_failed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_leads_conversation_id ON leads(conversation_id);
CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry_at ON dead_letter_queue(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return eris.Wrap(s.db.Close(), "sqlite: close")
}

func (s *SQLiteStore) CreateLead(ctx context.Context, name, phone string, source model.LeadSource) (*model.Lead, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	if source == "" {
		source = model.LeadSourceWebhook
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (id, contact_name, contact_phone, source, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, phone, string(source), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert lead")
	}

	return &model.Lead{
		ID:           id,
		ContactName:  name,
		ContactPhone: phone,
		Source:       source,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// BulkImportLeads inserts leads inside one transaction. SQLite has no COPY
// protocol, so a prepared statement loop is the best it offers.
func (s *SQLiteStore) BulkImportLeads(ctx context.Context, leads []model.Lead) (int64, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: bulk import begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO leads (id, contact_name, contact_phone, source, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: bulk import prepare")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var inserted int64
	for _, l := range leads {
		id := l.ID
		if id == "" {
			id = uuid.New().String()
		}
		source := l.Source
		if source == "" {
			source = model.LeadSourceManual
		}
		created := l.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx, id, l.ContactName, l.ContactPhone, string(source), created, now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: bulk import lead %s", id)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: bulk import commit")
	}
	return inserted, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	var l model.Lead
	var convID sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, contact_name, contact_phone, source, conversation_id, created_at, updated_at FROM leads WHERE id = ?`,
		leadID,
	).Scan(&l.ID, &l.ContactName, &l.ContactPhone, &l.Source, &convID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get lead %s", leadID)
	}
	if convID.Valid {
		l.ConversationID = convID.String
	}
	return &l, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT id, contact_name, contact_phone, source, conversation_id, created_at, updated_at FROM leads WHERE true`
	args := []any{}

	if filter.Linked != nil {
		if *filter.Linked {
			query += ` AND conversation_id IS NOT NULL`
		} else {
			query += ` AND conversation_id IS NULL`
		}
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, string(filter.Source))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var l model.Lead
		var convID sql.NullString

		if err := rows.Scan(&l.ID, &l.ContactName, &l.ContactPhone, &l.Source, &convID, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		if convID.Valid {
			l.ConversationID = convID.String
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) LinkLead(ctx context.Context, leadID, conversationID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET conversation_id = ?, updated_at = ? WHERE id = ?`,
		conversationID, time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: link lead %s", leadID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: link lead rows affected")
	}
	if affected == 0 {
		return eris.Errorf("lead not found: %s", leadID)
	}
	return nil
}

func (s *SQLiteStore) LookupOrCreateConversation(ctx context.Context, externalID string, status model.ConversationStatus) (*model.ConversationRecord, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, external_id, status, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (external_id) DO UPDATE SET status = excluded.status`,
		id, externalID, string(status), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert conversation %s", externalID)
	}

	var rec model.ConversationRecord
	err = s.db.QueryRowContext(ctx,
		`SELECT id, external_id, status, created_at FROM conversations WHERE external_id = ?`,
		externalID,
	).Scan(&rec.ID, &rec.ExternalID, &rec.Status, &rec.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: read conversation %s", externalID)
	}
	return &rec, nil
}

// Dead letter queue methods

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue
		 (id, lead_id, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type,
		   retry_count = excluded.retry_count, next_retry_at = excluded.next_retry_at,
		   last_failed_at = excluded.last_failed_at`,
		entry.ID, entry.LeadID, entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, lead_id, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue
	          WHERE next_retry_at <= ? AND retry_count < max_retries`
	args := []any{time.Now().UTC()}

	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}

	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		if err := rows.Scan(&e.ID, &e.LeadID, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: dequeue dlq iterate")
}

func (s *SQLiteStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE id = ?`,
		nextRetryAt, lastErr, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment dlq retry %s", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: increment dlq rows affected")
	}
	if affected == 0 {
		return eris.Errorf("dlq entry not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count dlq")
}
