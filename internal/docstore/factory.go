package docstore

import (
	"context"
	"fmt"

	"github.com/vyrodovalexey/integrationgw/internal/config"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
	"github.com/vyrodovalexey/integrationgw/internal/retry"
)

// New creates the backend selected by cfg.Type, wrapped with tracing and
// retries.
func New(ctx context.Context, cfg config.DocumentStoreConfig, logger observability.Logger) (Store, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	var (
		store Store
		err   error
	)

	switch cfg.Type {
	case config.StoreTypeMemory, "":
		store = NewMemoryStore()

	case config.StoreTypeFile:
		if cfg.File == nil {
			return nil, fmt.Errorf("document store type %s requires a file block", cfg.Type)
		}
		store, err = NewFileStore(cfg.File.Path, cfg.File.Watch, WithFileLogger(logger))

	case config.StoreTypePostgres:
		if cfg.Postgres == nil {
			return nil, fmt.Errorf("document store type %s requires a postgres block", cfg.Type)
		}
		store, err = NewPostgresStore(ctx, cfg.Postgres, logger)

	case config.StoreTypeSQLite:
		if cfg.SQLite == nil {
			return nil, fmt.Errorf("document store type %s requires a sqlite block", cfg.Type)
		}
		store, err = NewSQLiteStore(ctx, cfg.SQLite.Path, logger)

	case config.StoreTypeDynamoDB:
		if cfg.DynamoDB == nil {
			return nil, fmt.Errorf("document store type %s requires a dynamodb block", cfg.Type)
		}
		store, err = NewDynamoDBStore(ctx, cfg.DynamoDB, logger)

	default:
		return nil, fmt.Errorf("unsupported document store type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	backend := cfg.Type
	if backend == "" {
		backend = config.StoreTypeMemory
	}

	return Instrument(store, backend, &retry.Config{
		MaxRetries:     cfg.Retry.MaxRetries,
		InitialBackoff: cfg.Retry.InitialBackoff.Duration(),
		MaxBackoff:     cfg.Retry.MaxBackoff.Duration(),
	}, logger), nil
}

// Seed writes docs into store, replacing documents with the same name.
func Seed(ctx context.Context, store Store, docs []Document) error {
	for i := range docs {
		if err := store.PutDocument(ctx, &docs[i]); err != nil {
			return fmt.Errorf("seed document %s: %w", docs[i].Name, err)
		}
	}
	return nil
}
