package main

import (
	"context"
	"fmt"

	"github.com/vyrodovalexey/integrationgw/internal/audit"
	"github.com/vyrodovalexey/integrationgw/internal/cache"
	"github.com/vyrodovalexey/integrationgw/internal/config"
	"github.com/vyrodovalexey/integrationgw/internal/docstore"
	"github.com/vyrodovalexey/integrationgw/internal/health"
	"github.com/vyrodovalexey/integrationgw/internal/integration"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
	"github.com/vyrodovalexey/integrationgw/internal/secrets"
	"github.com/vyrodovalexey/integrationgw/internal/server"
)

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "integrationgw"

// application holds all application components.
type application struct {
	config  *config.Config
	server  *server.Server
	deps    *integration.Deps
	cache   cache.Cache
	store   docstore.Store
	audit   *audit.Writer
	secrets *secrets.Resolver
	tracer  *observability.Tracer
	metrics *observability.Metrics
	checker *health.Checker
}

// newApplication wires every component. Secret references in cfg are
// resolved in place first.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger observability.Logger,
	seedPath string,
) (*application, error) {
	resolver, err := newSecretResolver(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := resolver.ResolveConfig(ctx, cfg); err != nil {
		_ = resolver.Close()
		return nil, err
	}

	app := &application{config: cfg, secrets: resolver}
	if err := app.init(ctx, logger, seedPath); err != nil {
		app.close(logger)
		return nil, err
	}
	return app, nil
}

func (a *application) init(ctx context.Context, logger observability.Logger, seedPath string) error {
	cfg := a.config

	a.metrics = observability.NewMetrics(metricsNamespace)
	a.metrics.SetBuildInfo(version, gitCommit, buildTime)
	a.metrics.InitVecMetrics()
	cacheMetrics := cache.GetMetrics()
	cacheMetrics.Init()
	cacheMetrics.MustRegister(a.metrics.Registry())

	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  cfg.ServiceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	a.tracer = tracer

	shared, err := cache.New(cfg.Redis, logger)
	if err != nil {
		return err
	}
	a.cache = shared

	store, err := docstore.New(ctx, cfg.DocumentStore, logger)
	if err != nil {
		return err
	}
	a.store = store

	if seedPath != "" {
		if err := seedDocuments(ctx, store, seedPath, logger); err != nil {
			return err
		}
	}

	a.audit = audit.NewWriter(store, logger,
		audit.WithMetrics(a.metrics),
		audit.WithDisabled(!cfg.Audit.Enabled),
	)

	a.deps = &integration.Deps{
		Cache: shared,
		Store: store,
		Audit: a.audit,
		Transport: integration.NewHTTPTransport(cfg.Integration,
			integration.WithTransportLogger(logger),
			integration.WithTransportMetrics(a.metrics),
		),
		Logger:          logger,
		Metrics:         a.metrics,
		DefaultTimeout:  cfg.Integration.DefaultTimeout.Duration(),
		LocalMaxEntries: cfg.Integration.LocalMaxEntries,
	}

	a.checker = health.NewChecker(version, health.NewMetrics(metricsNamespace, a.metrics.Registry()))
	a.checker.RegisterPinger("redis", shared)
	a.checker.RegisterPinger("documentStore", store)

	a.server, err = server.New(cfg, a.deps,
		server.WithLogger(logger),
		server.WithMetrics(a.metrics),
		server.WithTracer(tracer),
		server.WithChecker(a.checker),
	)
	return err
}

func newSecretResolver(cfg *config.Config, logger observability.Logger) (*secrets.Resolver, error) {
	env := secrets.NewEnvProvider(secrets.WithEnvLogger(logger))
	if cfg.Vault == nil {
		return secrets.NewResolver(env, nil), nil
	}

	vault, err := secrets.NewVaultProvider(&secrets.VaultConfig{
		Address:   cfg.Vault.Address,
		Token:     cfg.Vault.Token,
		Namespace: cfg.Vault.Namespace,
		MountPath: cfg.Vault.MountPath,
	}, logger)
	if err != nil {
		return nil, err
	}
	return secrets.NewResolver(env, vault), nil
}

func seedDocuments(ctx context.Context, store docstore.Store, path string, logger observability.Logger) error {
	docs, err := docstore.LoadDocuments(path)
	if err != nil {
		return err
	}
	if err := docstore.Seed(ctx, store, docs); err != nil {
		return err
	}
	logger.Info("document store seeded",
		observability.String("path", path),
		observability.Int("documents", len(docs)),
	)
	return nil
}
