package integration

import (
	"context"
	"sync"
	"time"

	"github.com/vyrodovalexey/integrationgw/internal/cache"
	"github.com/vyrodovalexey/integrationgw/internal/configuration"
	"github.com/vyrodovalexey/integrationgw/internal/docstore"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
)

// Deps holds the process-wide handles shared by every request scope.
type Deps struct {
	Cache          cache.Cache
	Store          docstore.Store
	Audit          Auditor
	Transport      Transport
	Logger         observability.Logger
	Metrics        *observability.Metrics
	DefaultTimeout time.Duration

	// LocalMaxEntries caps the local tiers of each scope.
	LocalMaxEntries int

	// Now overrides the clock of async clients.
	Now func() time.Time

	pending sync.WaitGroup
}

// Scope is the client graph of one inbound request.
type Scope struct {
	Configuration *configuration.Provider
	Async         *AsyncClient
}

// NewScope builds a fresh configuration provider and client chain whose
// logs carry the request id of ctx.
func (d *Deps) NewScope(ctx context.Context) *Scope {
	logger := d.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	logger = logger.WithContext(ctx)

	provider := configuration.NewProvider(d.Cache, d.Store, logger,
		configuration.WithLocalMaxEntries(d.LocalMaxEntries))
	base := NewClient(provider, d.Cache, d.Audit, d.Transport,
		WithLogger(logger),
		WithMetrics(d.Metrics),
		WithDefaultTimeout(d.DefaultTimeout),
		WithLocalMaxEntries(d.LocalMaxEntries),
		withDrainGroup(&d.pending),
	)

	return &Scope{
		Configuration: provider,
		Async:         NewAsyncClient(NewGatewayClient(base), d.Now),
	}
}

// Wait blocks until the scope's background cache population finished.
func (s *Scope) Wait() {
	s.Async.Wait()
}

// Drain waits for background work of every scope or for ctx to end.
func (d *Deps) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
