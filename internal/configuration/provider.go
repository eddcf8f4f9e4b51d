package configuration

import (
	"context"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/integrationgw/internal/cache"
	"github.com/vyrodovalexey/integrationgw/internal/docstore"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
)

// Well-known document names.
const (
	// IntegrationServices lists the outbound services by name.
	IntegrationServices = "IntegrationServices"

	// KeyPrefix prefixes the shared cache key of a document.
	KeyPrefix = "configuration:"
)

// Document is a named configuration document.
type Document = docstore.Document

// ServiceDescriptor is one entry of the IntegrationServices document.
type ServiceDescriptor struct {
	Name    string
	Address string

	// Attributes holds the raw entry, including Name and Address.
	Attributes map[string]any
}

// Provider resolves configuration documents for one request scope.
// It is safe for concurrent use.
type Provider struct {
	cache  cache.Cache
	store  docstore.Store
	logger observability.Logger

	localMaxEntries int
	local           *cache.Local[*Document]
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithLocalMaxEntries caps the number of documents held by the local tier.
func WithLocalMaxEntries(n int) ProviderOption {
	return func(p *Provider) {
		p.localMaxEntries = n
	}
}

// NewProvider creates a Provider with an empty local tier.
func NewProvider(c cache.Cache, store docstore.Store, logger observability.Logger, opts ...ProviderOption) *Provider {
	if logger == nil {
		logger = observability.NopLogger()
	}
	p := &Provider{
		cache:  c,
		store:  store,
		logger: logger.With(observability.Component("configuration")),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.local = cache.NewLocal[*Document]("configuration", p.localMaxEntries)
	return p
}

// GetConfiguration returns the document called name. A document found in a
// slower tier is copied into the faster ones.
func (p *Provider) GetConfiguration(ctx context.Context, name string) (*Document, error) {
	if doc, ok := p.local.Get(ctx, name); ok {
		p.logger.Debug("memory cache hit", observability.String("configuration", name))
		return doc, nil
	}

	var cached Document
	found, err := p.cache.GetObject(ctx, KeyPrefix+name, &cached)
	if err != nil {
		return nil, fmt.Errorf("read configuration %s from cache: %w", name, err)
	}
	if found {
		p.logger.Debug("redis cache hit", observability.String("configuration", name))
		p.local.Set(ctx, name, &cached)
		return &cached, nil
	}

	p.logger.Debug("document store fetch", observability.String("configuration", name))
	doc, err := p.store.FindOne(ctx, name)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, &NotFoundError{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("read configuration %s from store: %w", name, err)
	}

	p.local.Set(ctx, name, doc)
	if err := p.cache.SetObject(ctx, KeyPrefix+name, doc, cache.DefaultTTL); err != nil {
		p.logger.Warn("failed to cache configuration",
			observability.String("configuration", name),
			observability.Error(err))
	}

	return doc, nil
}

// GetIntegrationServiceConfiguration returns the IntegrationServices entry
// whose name is serviceKey.
func (p *Provider) GetIntegrationServiceConfiguration(ctx context.Context, serviceKey string) (*ServiceDescriptor, error) {
	doc, err := p.GetConfiguration(ctx, IntegrationServices)
	if err != nil {
		return nil, err
	}

	entry := findEntry(doc, serviceKey)
	if entry == nil {
		return nil, &NotFoundError{Name: IntegrationServices + "." + serviceKey}
	}

	address, _ := entry["address"].(string)
	return &ServiceDescriptor{
		Name:       serviceKey,
		Address:    address,
		Attributes: entry,
	}, nil
}

// GetDefaultConfiguration returns the entry named subKey of document name,
// or nil when either is absent.
func (p *Provider) GetDefaultConfiguration(ctx context.Context, name, subKey string) (map[string]any, error) {
	doc, err := p.GetConfiguration(ctx, name)
	if errors.Is(err, ErrConfigurationNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return findEntry(doc, subKey), nil
}

func findEntry(doc *Document, name string) map[string]any {
	for _, entry := range doc.Value {
		if n, ok := entry["name"].(string); ok && n == name {
			return entry
		}
	}
	return nil
}
