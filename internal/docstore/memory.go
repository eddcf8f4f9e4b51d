package docstore

import (
	"context"
	"sync"
)

// MemoryStore keeps documents and audit records in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]*Document
	audits []AuditRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store seeded with docs.
func NewMemoryStore(docs ...Document) *MemoryStore {
	s := &MemoryStore{docs: make(map[string]*Document, len(docs))}
	for i := range docs {
		d := docs[i]
		s.docs[d.Name] = &d
	}
	return s
}

// FindOne implements Store. The returned document is a copy.
func (s *MemoryStore) FindOne(_ context.Context, name string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDocument(doc), nil
}

// PutDocument implements Store.
func (s *MemoryStore) PutDocument(_ context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[doc.Name] = cloneDocument(doc)
	return nil
}

// Replace swaps the full document set.
func (s *MemoryStore) Replace(docs []Document) {
	next := make(map[string]*Document, len(docs))
	for i := range docs {
		d := docs[i]
		next[d.Name] = &d
	}

	s.mu.Lock()
	s.docs = next
	s.mu.Unlock()
}

// InsertAudit implements Store.
func (s *MemoryStore) InsertAudit(_ context.Context, record *AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audits = append(s.audits, *record)
	return nil
}

// Audits returns a snapshot of the stored audit records.
func (s *MemoryStore) Audits() []AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]AuditRecord, len(s.audits))
	copy(out, s.audits)
	return out
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func cloneDocument(doc *Document) *Document {
	out := &Document{Name: doc.Name, Value: make([]map[string]any, len(doc.Value))}
	for i, entry := range doc.Value {
		if entry == nil {
			continue
		}
		m := make(map[string]any, len(entry))
		for k, v := range entry {
			m[k] = v
		}
		out.Value[i] = m
	}
	return out
}
