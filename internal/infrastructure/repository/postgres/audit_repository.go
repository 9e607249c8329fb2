package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
)

// AuditRepository keeps the durable query log and the catalog of indexed
// documents. Session resets never touch it.
type AuditRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db, now: time.Now}
}

func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/mcp startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101401)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS query_log (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	query TEXT NOT NULL,
	response TEXT NOT NULL,
	intent_status TEXT NOT NULL,
	intent JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_log_session ON query_log(session_id, created_at DESC);

CREATE TABLE IF NOT EXISTS indexed_documents (
	file_name TEXT PRIMARY KEY,
	file_path TEXT NOT NULL,
	source TEXT NOT NULL,
	subject TEXT NOT NULL,
	fragment_count INTEGER NOT NULL,
	total_length INTEGER NOT NULL,
	indexed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_indexed_documents_subject ON indexed_documents(subject);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *AuditRepository) RecordQuery(ctx context.Context, entry domain.QueryLogEntry) error {
	if entry.ID == "" || entry.SessionID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record query", errors.New("entry id and session id are required"))
	}
	intentJSON, err := json.Marshal(entry.Intent.Intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	createdAt := entry.Timestamp
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO query_log (id, session_id, query, response, intent_status, intent, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING
`, entry.ID, entry.SessionID, entry.Query, entry.Answer, string(entry.Intent.Status), intentJSON, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("insert query log: %w", err)
	}
	return nil
}

// RecordDocument upserts by file name, so re-ingesting a document refreshes
// its counts instead of duplicating the row.
func (r *AuditRepository) RecordDocument(ctx context.Context, doc domain.Document) error {
	if doc.FileName == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record document", errors.New("file name is required"))
	}
	indexedAt := doc.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = r.now()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO indexed_documents (file_name, file_path, source, subject, fragment_count, total_length, indexed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (file_name) DO UPDATE
SET file_path = EXCLUDED.file_path,
	source = EXCLUDED.source,
	subject = EXCLUDED.subject,
	fragment_count = EXCLUDED.fragment_count,
	total_length = EXCLUDED.total_length,
	indexed_at = EXCLUDED.indexed_at
`, doc.FileName, doc.FilePath, doc.Source, doc.Subject, doc.FragmentCount, doc.TotalLength, indexedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert indexed document: %w", err)
	}
	return nil
}

// ListDocuments returns the catalog for one subject, newest first. An empty
// subject lists everything.
func (r *AuditRepository) ListDocuments(ctx context.Context, subject string, limit int) ([]domain.Document, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT file_name, file_path, source, subject, fragment_count, total_length, indexed_at
FROM indexed_documents
WHERE $1 = '' OR lower(subject) = lower($1)
ORDER BY indexed_at DESC
LIMIT $2
`, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("list indexed documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0, limit)
	for rows.Next() {
		var doc domain.Document
		if err := rows.Scan(
			&doc.FileName,
			&doc.FilePath,
			&doc.Source,
			&doc.Subject,
			&doc.FragmentCount,
			&doc.TotalLength,
			&doc.IndexedAt,
		); err != nil {
			return nil, fmt.Errorf("scan indexed document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate indexed documents: %w", err)
	}
	return out, nil
}
