package docstore

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/integrationgw/internal/observability"
	"github.com/vyrodovalexey/integrationgw/internal/retry"
)

const tracerName = "integrationgw/docstore"

// instrumentedStore decorates a Store with tracing and transient-error
// retries. ErrNotFound is never retried.
type instrumentedStore struct {
	next     Store
	backend  string
	retryCfg *retry.Config
	logger   observability.Logger
}

// Instrument wraps next with tracing and retries.
func Instrument(next Store, backend string, retryCfg *retry.Config, logger observability.Logger) Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &instrumentedStore{
		next:     next,
		backend:  backend,
		retryCfg: retryCfg,
		logger:   logger.With(observability.Component("docstore")),
	}
}

func (s *instrumentedStore) do(ctx context.Context, op, key string, fn func(context.Context) error) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "docstore."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("docstore.backend", s.backend),
			attribute.String("docstore.key", key),
		),
	)
	defer span.End()

	err := retry.Do(ctx, s.retryCfg, func() error {
		return fn(ctx)
	}, &retry.Options{
		ShouldRetry: retry.Unless(ErrNotFound),
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			s.logger.Warn("retrying document store operation",
				observability.String("operation", op),
				observability.String("key", key),
				observability.Int("attempt", attempt),
				observability.Duration("backoff", backoff),
				observability.Error(err))
		},
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *instrumentedStore) FindOne(ctx context.Context, name string) (*Document, error) {
	var doc *Document
	err := s.do(ctx, "find", name, func(ctx context.Context) error {
		d, err := s.next.FindOne(ctx, name)
		doc = d
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *instrumentedStore) PutDocument(ctx context.Context, doc *Document) error {
	return s.do(ctx, "put", doc.Name, func(ctx context.Context) error {
		return s.next.PutDocument(ctx, doc)
	})
}

func (s *instrumentedStore) InsertAudit(ctx context.Context, record *AuditRecord) error {
	return s.do(ctx, "insertAudit", record.Code, func(ctx context.Context) error {
		return s.next.InsertAudit(ctx, record)
	})
}

func (s *instrumentedStore) Ping(ctx context.Context) error {
	return s.do(ctx, "ping", "", s.next.Ping)
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}
