package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/integrationgw/internal/docstore"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
)

// DefaultWriteTimeout bounds a single background write.
const DefaultWriteTimeout = 10 * time.Second

// Record is one stored audit entry.
type Record = docstore.AuditRecord

// Writer stores audit records through a document store.
type Writer struct {
	store        docstore.Store
	logger       observability.Logger
	metrics      *observability.Metrics
	disabled     bool
	writeTimeout time.Duration
	now          func() time.Time

	wg sync.WaitGroup
}

// Option configures a Writer.
type Option func(*Writer)

// WithMetrics records write outcomes on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(w *Writer) {
		w.metrics = m
	}
}

// WithWriteTimeout overrides DefaultWriteTimeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.writeTimeout = d
		}
	}
}

// WithDisabled keeps the AuditInsertion log but skips storage.
func WithDisabled(disabled bool) Option {
	return func(w *Writer) {
		w.disabled = disabled
	}
}

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// NewWriter creates a Writer backed by store.
func NewWriter(store docstore.Store, logger observability.Logger, opts ...Option) *Writer {
	if logger == nil {
		logger = observability.NopLogger()
	}
	w := &Writer{
		store:        store,
		logger:       logger.With(observability.Component("audit")),
		writeTimeout: DefaultWriteTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Insert schedules an audit record for code. It never blocks on storage and
// never fails. The write outlives cancellation of ctx.
func (w *Writer) Insert(ctx context.Context, code string, data, result any, success bool) {
	record := &Record{
		ID:        uuid.NewString(),
		Code:      code,
		Data:      data,
		Result:    result,
		Success:   success,
		RequestID: observability.RequestIDFromContext(ctx),
		CreatedAt: w.now().UTC(),
	}

	w.logger.WithContext(ctx).Info("AuditInsertion",
		observability.String("auditId", record.ID),
		observability.String("code", code),
		observability.Bool("success", success))

	if w.disabled || w.store == nil {
		return
	}

	detached := context.WithoutCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.write(detached, record)
	}()
}

func (w *Writer) write(ctx context.Context, record *Record) {
	ctx, cancel := context.WithTimeout(ctx, w.writeTimeout)
	defer cancel()

	err := w.store.InsertAudit(ctx, record)
	w.metrics.RecordAuditWrite(err == nil)
	if err != nil {
		w.logger.WithContext(ctx).Error("failed to insert audit record",
			observability.String("auditId", record.ID),
			observability.String("code", record.Code),
			observability.Error(err))
	}
}

// Close waits for pending writes or for ctx to end.
func (w *Writer) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("audit writes still pending at shutdown")
		return ctx.Err()
	}
}
