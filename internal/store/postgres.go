package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/voicebridge/leadlink/internal/db"
	"github.com/voicebridge/leadlink/internal/model"
	"github.com/voicebridge/leadlink/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"insert_lead":         `INSERT INTO leads (id, contact_name, contact_phone, source, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"get_lead":            `SELECT id, contact_name, contact_phone, source, conversation_id, created_at, updated_at FROM leads WHERE id = $1`,
	"link_lead":           `UPDATE leads SET conversation_id = $1, updated_at = $2 WHERE id = $3`,
	"upsert_conversation": `INSERT INTO conversations (id, external_id, status, created_at) VALUES ($1, $2, $3, $4) ON CONFLICT (external_id) DO UPDATE SET status = EXCLUDED.status RETURNING id, external_id, status, created_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare hot-path statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS conversations (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	external_id TEXT NOT NULL UNIQUE,
	status      TEXT NOT NULL DEFAULT 'completed',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leads (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	contact_name    TEXT NOT NULL,
	contact_phone   TEXT NOT NULL,
	source          TEXT NOT NULL DEFAULT 'webhook',
	conversation_id TEXT REFERENCES conversations(id),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	lead_id        TEXT NOT NULL REFERENCES leads(id),
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	retry_count    INT NOT NULL DEFAULT 0,
	max_retries    INT NOT NULL DEFAULT 5,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_conversation_id ON leads(conversation_id);
CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(source);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry_at ON dead_letter_queue(next_retry_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateLead(ctx context.Context, name, phone string, source model.LeadSource) (*model.Lead, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	if source == "" {
		source = model.LeadSourceWebhook
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO leads (id, contact_name, contact_phone, source, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, name, phone, string(source), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert lead")
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

// BulkImportLeads inserts leads over the COPY protocol, which is much faster
// than per-row INSERTs for CSV-sized imports.
func (s *PostgresStore) BulkImportLeads(ctx context.Context, leads []model.Lead) (int64, error) {
	now := time.Now().UTC()

	rows := make([][]any, 0, len(leads))
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
		rows = append(rows, []any{id, l.ContactName, l.ContactPhone, string(source), created, now})
	}

	n, err := db.CopyFrom(ctx, s.pool, "leads",
		[]string{"id", "contact_name", "contact_phone", "source", "created_at", "updated_at"}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: bulk import leads")
	}
	return n, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	var l model.Lead
	var convID *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, contact_name, contact_phone, source, conversation_id, created_at, updated_at FROM leads WHERE id = $1`,
		leadID,
	).Scan(&l.ID, &l.ContactName, &l.ContactPhone, &l.Source, &convID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get lead %s", leadID)
	}
	if convID != nil {
		l.ConversationID = *convID
	}
	return &l, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT id, contact_name, contact_phone, source, conversation_id, created_at, updated_at FROM leads WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Linked != nil {
		if *filter.Linked {
			query += ` AND conversation_id IS NOT NULL`
		} else {
			query += ` AND conversation_id IS NULL`
		}
	}
	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, string(filter.Source))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var l model.Lead
		var convID *string

		if err := rows.Scan(&l.ID, &l.ContactName, &l.ContactPhone, &l.Source, &convID, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		if convID != nil {
			l.ConversationID = *convID
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) LinkLead(ctx context.Context, leadID, conversationID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET conversation_id = $1, updated_at = $2 WHERE id = $3`,
		conversationID, time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: link lead %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", leadID)
	}
	return nil
}

func (s *PostgresStore) LookupOrCreateConversation(ctx context.Context, externalID string, status model.ConversationStatus) (*model.ConversationRecord, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	// Single-statement upsert: the unique constraint on external_id makes
	// concurrent deliveries for the same conversation converge on one row.
	var rec model.ConversationRecord
	err := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (id, external_id, status, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (external_id) DO UPDATE SET status = EXCLUDED.status
		 RETURNING id, external_id, status, created_at`,
		id, externalID, string(status), now,
	).Scan(&rec.ID, &rec.ExternalID, &rec.Status, &rec.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert conversation %s", externalID)
	}
	return &rec, nil
}

// Dead letter queue methods

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		 (id, lead_id, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $3, error_type = $4, retry_count = $5, next_retry_at = $7, last_failed_at = $9`,
		entry.ID, entry.LeadID, entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, lead_id, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue
	          WHERE next_retry_at <= now() AND retry_count < max_retries`
	args := []any{}
	argIdx := 1

	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}

	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		if err := rows.Scan(&e.ID, &e.LeadID, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: dequeue dlq iterate")
}

func (s *PostgresStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment dlq retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("dlq entry not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}
