package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vyrodovalexey/integrationgw/internal/config"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS configurations (
    name       TEXT PRIMARY KEY,
    value      JSONB NOT NULL DEFAULT '[]'::jsonb,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audits (
    id         UUID PRIMARY KEY,
    code       TEXT NOT NULL,
    data       JSONB,
    result     JSONB,
    success    BOOLEAN NOT NULL,
    request_id TEXT,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS audits_code_created_at_idx ON audits (code, created_at);
`

// pgxPool is the subset of *pgxpool.Pool used by PostgresStore.
type pgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore stores documents as JSONB rows in PostgreSQL.
type PostgresStore struct {
	pool   pgxPool
	logger observability.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects a pgx pool and creates the schema if needed.
func NewPostgresStore(ctx context.Context, cfg *config.PostgresConfig, logger observability.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	s := newPostgresStore(pool, logger)
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s.logger.Info("postgres document store initialized",
		observability.String("host", poolCfg.ConnConfig.Host),
		observability.String("database", poolCfg.ConnConfig.Database))

	return s, nil
}

func newPostgresStore(pool pgxPool, logger observability.Logger) *PostgresStore {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &PostgresStore{
		pool:   pool,
		logger: logger.With(observability.Component("docstore.postgres")),
	}
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to run postgres migrations: %w", err)
	}
	return nil
}

// FindOne implements Store.
func (s *PostgresStore) FindOne(ctx context.Context, name string) (*Document, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM configurations WHERE name = $1`, name,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres find %s: %w", name, err)
	}

	doc := &Document{Name: name}
	if err := json.Unmarshal(raw, &doc.Value); err != nil {
		return nil, fmt.Errorf("postgres document %s has invalid value: %w", name, err)
	}
	return doc, nil
}

// PutDocument implements Store.
func (s *PostgresStore) PutDocument(ctx context.Context, doc *Document) error {
	raw, err := json.Marshal(valueOrEmpty(doc.Value))
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.Name, err)
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO configurations (name, value, updated_at) VALUES ($1, $2::jsonb, now())
ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		doc.Name, string(raw))
	if err != nil {
		return fmt.Errorf("postgres put %s: %w", doc.Name, err)
	}
	return nil
}

// InsertAudit implements Store.
func (s *PostgresStore) InsertAudit(ctx context.Context, record *AuditRecord) error {
	data, result, err := encodeAuditPayload(record)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO audits (id, code, data, result, success, request_id, created_at)
VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, $6, $7)`,
		record.ID, record.Code, data, result, record.Success, record.RequestID, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres insert audit %s: %w", record.Code, err)
	}
	return nil
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func valueOrEmpty(v []map[string]any) []map[string]any {
	if v == nil {
		return []map[string]any{}
	}
	return v
}

// encodeAuditPayload JSON-encodes the free-form audit fields. A nil field
// is stored as SQL NULL.
func encodeAuditPayload(record *AuditRecord) (data, result *string, err error) {
	encode := func(v any) (*string, error) {
		if v == nil {
			return nil, nil
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode audit %s: %w", record.Code, err)
		}
		s := string(raw)
		return &s, nil
	}

	if data, err = encode(record.Data); err != nil {
		return nil, nil, err
	}
	if result, err = encode(record.Result); err != nil {
		return nil, nil, err
	}
	return data, result, nil
}
