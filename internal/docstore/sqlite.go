package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/vyrodovalexey/integrationgw/internal/observability"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS configurations (
    name       TEXT PRIMARY KEY,
    value      TEXT NOT NULL DEFAULT '[]',
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS audits (
    id         TEXT PRIMARY KEY,
    code       TEXT NOT NULL,
    data       TEXT,
    result     TEXT,
    success    BOOLEAN NOT NULL,
    request_id TEXT,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS audits_code_created_at_idx ON audits (code, created_at);
`

// SQLiteStore stores documents as JSON text in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger observability.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string, logger observability.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run SQLite migrations: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger.With(observability.Component("docstore.sqlite")),
	}
	s.logger.Info("sqlite document store initialized", observability.String("path", path))

	return s, nil
}

// FindOne implements Store.
func (s *SQLiteStore) FindOne(ctx context.Context, name string) (*Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM configurations WHERE name = ?`, name,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite find %s: %w", name, err)
	}

	doc := &Document{Name: name}
	if err := json.Unmarshal([]byte(raw), &doc.Value); err != nil {
		return nil, fmt.Errorf("sqlite document %s has invalid value: %w", name, err)
	}
	return doc, nil
}

// PutDocument implements Store.
func (s *SQLiteStore) PutDocument(ctx context.Context, doc *Document) error {
	raw, err := json.Marshal(valueOrEmpty(doc.Value))
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.Name, err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO configurations (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		doc.Name, string(raw))
	if err != nil {
		return fmt.Errorf("sqlite put %s: %w", doc.Name, err)
	}
	return nil
}

// InsertAudit implements Store.
func (s *SQLiteStore) InsertAudit(ctx context.Context, record *AuditRecord) error {
	data, result, err := encodeAuditPayload(record)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO audits (id, code, data, result, success, request_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Code, data, result, record.Success, record.RequestID, record.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("sqlite insert audit %s: %w", record.Code, err)
	}
	return nil
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
