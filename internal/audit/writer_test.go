package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/integrationgw/internal/docstore"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
)

// blockingStore holds every InsertAudit until release is closed.
type blockingStore struct {
	*docstore.MemoryStore
	release chan struct{}
	err     error

	mu      sync.Mutex
	ctxErrs []error
}

func (s *blockingStore) InsertAudit(ctx context.Context, record *docstore.AuditRecord) error {
	s.mu.Lock()
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	s.mu.Unlock()

	<-s.release
	if s.err != nil {
		return s.err
	}
	return s.MemoryStore.InsertAudit(ctx, record)
}

func observed() (observability.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return observability.NewLoggerFromZap(zap.New(core)), logs
}

func TestWriter_Insert(t *testing.T) {
	store := docstore.NewMemoryStore()
	logger, logs := observed()
	metrics := observability.NewMetrics("test")
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	w := NewWriter(store, logger, WithMetrics(metrics), WithClock(func() time.Time { return fixed }))

	ctx := observability.ContextWithRequestID(context.Background(), "req-1")
	w.Insert(ctx, "CORREIOS", map[string]any{"cep": "01001000"}, map[string]any{"uf": "SP"}, true)
	require.NoError(t, w.Close(context.Background()))

	audits := store.Audits()
	require.Len(t, audits, 1)
	record := audits[0]
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "CORREIOS", record.Code)
	assert.Equal(t, "req-1", record.RequestID)
	assert.True(t, record.Success)
	assert.Equal(t, fixed, record.CreatedAt)

	entries := logs.FilterMessage("AuditInsertion").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "CORREIOS", fields["code"])
	assert.Equal(t, true, fields["success"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, record.ID, fields["auditId"])

	assert.Equal(t, 1.0, auditWrites(t, metrics, observability.OutcomeSuccess))
}

func TestWriter_InsertDoesNotBlock(t *testing.T) {
	store := &blockingStore{MemoryStore: docstore.NewMemoryStore(), release: make(chan struct{})}
	w := NewWriter(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	w.Insert(ctx, "A", nil, nil, false)
	cancel()

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer shortCancel()
	assert.ErrorIs(t, w.Close(shortCtx), context.DeadlineExceeded)

	close(store.release)
	require.NoError(t, w.Close(context.Background()))
	require.Len(t, store.Audits(), 1)
	assert.False(t, store.Audits()[0].Success)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.ctxErrs, 1)
	assert.NoError(t, store.ctxErrs[0])
}

func TestWriter_StoreFailureIsSwallowed(t *testing.T) {
	release := make(chan struct{})
	close(release)
	store := &blockingStore{
		MemoryStore: docstore.NewMemoryStore(),
		release:     release,
		err:         errors.New("store down"),
	}
	logger, logs := observed()
	metrics := observability.NewMetrics("test")

	w := NewWriter(store, logger, WithMetrics(metrics))
	w.Insert(context.Background(), "A", nil, nil, true)
	require.NoError(t, w.Close(context.Background()))

	assert.Empty(t, store.Audits())
	assert.Equal(t, 1, logs.FilterMessage("failed to insert audit record").Len())
	assert.Equal(t, 1.0, auditWrites(t, metrics, observability.OutcomeFailure))
}

func TestWriter_Disabled(t *testing.T) {
	store := docstore.NewMemoryStore()
	logger, logs := observed()

	w := NewWriter(store, logger, WithDisabled(true), WithWriteTimeout(time.Second))
	w.Insert(context.Background(), "A", nil, nil, true)
	require.NoError(t, w.Close(context.Background()))

	assert.Empty(t, store.Audits())
	assert.Equal(t, 1, logs.FilterMessage("AuditInsertion").Len())
}

// auditWrites reads the audit write counter for outcome from the registry.
func auditWrites(t *testing.T, m *observability.Metrics, outcome string) float64 {
	t.Helper()

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "test_audit_writes_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if hasLabel(metric, "outcome", outcome) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func hasLabel(metric *dto.Metric, name, value string) bool {
	for _, lp := range metric.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}
