package main

import (
	"context"

	"github.com/vyrodovalexey/integrationgw/internal/observability"
)

// run serves until ctx is cancelled and then shuts down gracefully.
func run(ctx context.Context, app *application, logger observability.Logger) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped unexpectedly", observability.Error(err))
		}
	}

	app.shutdown(logger)
}

// shutdown stops accepting requests, waits for background cache writes and
// audit records, and releases every connection.
func (a *application) shutdown(logger observability.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout.Duration())
	defer cancel()

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			logger.Error("failed to stop server gracefully", observability.Error(err))
		}
	}

	if a.deps != nil {
		if err := a.deps.Drain(ctx); err != nil {
			logger.Warn("background cache writes did not finish", observability.Error(err))
		}
	}

	if a.audit != nil {
		if err := a.audit.Close(ctx); err != nil {
			logger.Warn("pending audit records were not written", observability.Error(err))
		}
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown tracer", observability.Error(err))
		}
	}

	a.close(logger)
	logger.Info("integrationgw stopped")
}

// close releases the store, cache and secret providers.
func (a *application) close(logger observability.Logger) {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Error("failed to close document store", observability.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logger.Error("failed to close shared cache", observability.Error(err))
		}
	}
	if a.secrets != nil {
		if err := a.secrets.Close(); err != nil {
			logger.Error("failed to close secret providers", observability.Error(err))
		}
	}
}
