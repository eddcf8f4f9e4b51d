package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/integrationgw/internal/observability"
)

// DefaultVaultMountPath is the KV v2 mount used when none is configured.
const DefaultVaultMountPath = "secret"

// defaultVaultTimeout bounds every Vault request.
const defaultVaultTimeout = 10 * time.Second

// VaultConfig configures the Vault provider.
type VaultConfig struct {
	Address   string
	Token     string
	Namespace string
	MountPath string
	Timeout   time.Duration
}

// kvReader is the subset of *vaultapi.KVv2 the provider uses.
type kvReader interface {
	Get(ctx context.Context, secretPath string) (*vaultapi.KVSecret, error)
}

// VaultProvider implements Provider using a Vault KV v2 secrets engine.
type VaultProvider struct {
	kv        kvReader
	mountPath string
	logger    observability.Logger
}

// NewVaultProvider creates a Vault provider authenticated with a token.
func NewVaultProvider(cfg *VaultConfig, logger observability.Logger) (*VaultProvider, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("%w: vault address is required", ErrProviderNotConfigured)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	clientCfg := vaultapi.DefaultConfig()
	if clientCfg.Error != nil {
		return nil, fmt.Errorf("failed to read vault environment: %w", clientCfg.Error)
	}
	clientCfg.Address = cfg.Address
	clientCfg.Timeout = cfg.Timeout
	if clientCfg.Timeout == 0 {
		clientCfg.Timeout = defaultVaultTimeout
	}

	client, err := vaultapi.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	mountPath := cfg.MountPath
	if mountPath == "" {
		mountPath = DefaultVaultMountPath
	}

	logger.Info("vault secrets provider initialized",
		observability.String("address", cfg.Address),
		observability.String("mountPath", mountPath),
	)

	return &VaultProvider{
		kv:        client.KVv2(mountPath),
		mountPath: mountPath,
		logger:    logger,
	}, nil
}

// Type returns the provider type.
func (p *VaultProvider) Type() ProviderType {
	return ProviderTypeVault
}

// GetValue implements Provider.
func (p *VaultProvider) GetValue(ctx context.Context, path, key string) (string, error) {
	if path == "" || key == "" {
		return "", fmt.Errorf("%w: vault references need a path and a key", ErrInvalidReference)
	}

	secret, err := p.kv.Get(ctx, path)
	if err != nil {
		if errors.Is(err, vaultapi.ErrSecretNotFound) {
			return "", fmt.Errorf("%w: %s/%s", ErrSecretNotFound, p.mountPath, path)
		}
		return "", fmt.Errorf("failed to read vault secret %s/%s: %w", p.mountPath, path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: %s/%s has no data", ErrSecretNotFound, p.mountPath, path)
	}

	value, ok := secret.Data[key]
	if !ok {
		return "", fmt.Errorf("%w: key %s in %s/%s", ErrSecretNotFound, key, p.mountPath, path)
	}

	p.logger.Debug("resolved secret from vault",
		observability.String("path", path),
		observability.String("key", key),
	)
	return fmt.Sprint(value), nil
}

// Close implements Provider.
func (p *VaultProvider) Close() error {
	return nil
}
