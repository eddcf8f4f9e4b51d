// Package docstore provides the document store holding configuration
// documents and audit records.
//
// Backends: in-memory, YAML file (optionally hot reloaded with fsnotify),
// PostgreSQL (pgx), SQLite and DynamoDB. New selects one from configuration
// and wraps it with retries and tracing.
package docstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by FindOne when no document has the given name.
var ErrNotFound = errors.New("document not found")

// Document is a named configuration document. Value is a list of entries,
// each usually carrying a "name" key.
type Document struct {
	Name  string           `json:"name" yaml:"name"`
	Value []map[string]any `json:"value" yaml:"value"`
}

// AuditRecord is one write-only audit entry.
type AuditRecord struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Data      any       `json:"data,omitempty"`
	Result    any       `json:"result,omitempty"`
	Success   bool      `json:"success"`
	RequestID string    `json:"requestId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the document store contract.
type Store interface {
	// FindOne returns the document called name or ErrNotFound.
	FindOne(ctx context.Context, name string) (*Document, error)

	// PutDocument inserts or replaces a document.
	PutDocument(ctx context.Context, doc *Document) error

	// InsertAudit appends an audit record.
	InsertAudit(ctx context.Context, record *AuditRecord) error

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
