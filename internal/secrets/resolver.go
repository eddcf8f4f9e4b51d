package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/vyrodovalexey/integrationgw/internal/config"
)

// Reference prefixes.
const (
	EnvPrefix   = "env:"
	VaultPrefix = "vault:"
)

// Resolver expands secret references using the configured providers.
type Resolver struct {
	env   Provider
	vault Provider
}

// NewResolver creates a resolver. vault may be nil, in which case vault
// references fail with ErrProviderNotConfigured.
func NewResolver(env, vault Provider) *Resolver {
	if env == nil {
		env = NewEnvProvider()
	}
	return &Resolver{env: env, vault: vault}
}

// Resolve returns the secret named by ref, or ref itself when it is not a
// reference.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, EnvPrefix):
		return r.env.GetValue(ctx, strings.TrimPrefix(ref, EnvPrefix), "")

	case strings.HasPrefix(ref, VaultPrefix):
		if r.vault == nil {
			return "", fmt.Errorf("%w: %s", ErrProviderNotConfigured, ProviderTypeVault)
		}
		path, key, ok := strings.Cut(strings.TrimPrefix(ref, VaultPrefix), "#")
		if !ok {
			return "", fmt.Errorf("%w: %q is missing #key", ErrInvalidReference, ref)
		}
		return r.vault.GetValue(ctx, path, key)

	default:
		return ref, nil
	}
}

type secretField struct {
	name  string
	value *string
}

// ResolveConfig replaces every secret-bearing field of cfg in place.
func (r *Resolver) ResolveConfig(ctx context.Context, cfg *config.Config) error {
	fields := []secretField{
		{"redis.url", &cfg.Redis.URL},
		{"redis.password", &cfg.Redis.Password},
	}
	if pg := cfg.DocumentStore.Postgres; pg != nil {
		fields = append(fields, secretField{"documentStore.postgres.dsn", &pg.DSN})
	}
	if ddb := cfg.DocumentStore.DynamoDB; ddb != nil {
		fields = append(fields,
			secretField{"documentStore.dynamodb.accessKeyId", &ddb.AccessKeyID},
			secretField{"documentStore.dynamodb.secretAccessKey", &ddb.SecretAccessKey},
		)
	}
	for i := range cfg.CallbackAuth.KeyHashes {
		fields = append(fields, secretField{
			fmt.Sprintf("callbackAuth.keyHashes[%d]", i),
			&cfg.CallbackAuth.KeyHashes[i],
		})
	}

	for _, f := range fields {
		resolved, err := r.Resolve(ctx, *f.value)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", f.name, err)
		}
		*f.value = resolved
	}
	return nil
}

// Close closes the underlying providers.
func (r *Resolver) Close() error {
	if r.vault != nil {
		return r.vault.Close()
	}
	return nil
}
