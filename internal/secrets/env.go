package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/vyrodovalexey/integrationgw/internal/observability"
)

// EnvProvider implements Provider using environment variables. When key is
// set the variable must hold a JSON object and the named field is returned.
type EnvProvider struct {
	prefix string
	lookup func(string) (string, bool)
	logger observability.Logger
}

// EnvOption configures an EnvProvider.
type EnvOption func(*EnvProvider)

// WithEnvPrefix prepends prefix to every variable name.
func WithEnvPrefix(prefix string) EnvOption {
	return func(p *EnvProvider) {
		p.prefix = prefix
	}
}

// WithEnvLogger sets the provider logger.
func WithEnvLogger(logger observability.Logger) EnvOption {
	return func(p *EnvProvider) {
		p.logger = logger
	}
}

// NewEnvProvider creates a new environment variable secrets provider.
func NewEnvProvider(opts ...EnvOption) *EnvProvider {
	p := &EnvProvider{
		lookup: os.LookupEnv,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Type returns the provider type.
func (p *EnvProvider) Type() ProviderType {
	return ProviderTypeEnv
}

// GetValue implements Provider.
func (p *EnvProvider) GetValue(_ context.Context, path, key string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty variable name", ErrInvalidReference)
	}

	name := p.prefix + path
	value, ok := p.lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: environment variable %s", ErrSecretNotFound, name)
	}

	if key == "" {
		return value, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(value), &fields); err != nil {
		return "", fmt.Errorf("environment variable %s is not a JSON object: %w", name, err)
	}
	field, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: key %s in environment variable %s", ErrSecretNotFound, key, name)
	}

	p.logger.Debug("resolved secret from environment", observability.String("variable", name))
	return fmt.Sprint(field), nil
}

// Close implements Provider.
func (p *EnvProvider) Close() error {
	return nil
}
