// Package secrets resolves secret references found in configuration values
// against environment variables and HashiCorp Vault.
//
// A reference has one of two forms:
//
//	env:NAME            the value of environment variable NAME
//	vault:PATH#KEY      field KEY of the KV v2 secret at PATH
//
// Any other value is returned unchanged.
package secrets

import (
	"context"
	"errors"
)

// ProviderType represents the type of secrets provider.
type ProviderType string

const (
	// ProviderTypeVault uses HashiCorp Vault KV v2 as the backend.
	ProviderTypeVault ProviderType = "vault"
	// ProviderTypeEnv uses environment variables as the backend.
	ProviderTypeEnv ProviderType = "env"
)

// Common errors for secrets providers.
var (
	// ErrSecretNotFound is returned when a secret or one of its keys is missing.
	ErrSecretNotFound = errors.New("secret not found")
	// ErrProviderNotConfigured is returned when a reference names a provider
	// that was not set up.
	ErrProviderNotConfigured = errors.New("provider not configured")
	// ErrInvalidReference is returned for malformed references.
	ErrInvalidReference = errors.New("invalid secret reference")
)

// Provider looks up a single secret value.
type Provider interface {
	// Type returns the provider type.
	Type() ProviderType

	// GetValue returns field key of the secret at path. Providers that store
	// flat values ignore key.
	GetValue(ctx context.Context, path, key string) (string, error)

	// Close releases any resources held by the provider.
	Close() error
}
