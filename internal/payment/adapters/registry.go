package adapters

import (
	"strings"

	"github.com/smallbiznis/launchpad/internal/payment/domain"
)

// Registry resolves webhook adapters for configured providers.
type Registry struct {
	factories map[string]domain.AdapterFactory
	configs   map[string]domain.AdapterConfig
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{
		factories: map[string]domain.AdapterFactory{},
		configs:   map[string]domain.AdapterConfig{},
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := normalize(factory.Provider())
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	return registry
}

// Configure stores the credentials used when building the provider's adapter.
func (r *Registry) Configure(cfg domain.AdapterConfig) *Registry {
	provider := normalize(cfg.Provider)
	if provider != "" {
		cfg.Provider = provider
		r.configs[provider] = cfg
	}
	return r
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[normalize(provider)]
	return ok
}

// Adapter builds the adapter for provider with its configured credentials.
func (r *Registry) Adapter(provider string) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = normalize(provider)
	cfg, ok := r.configs[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return r.NewAdapter(provider, cfg)
}

func (r *Registry) NewAdapter(provider string, cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	factory, ok := r.factories[normalize(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return factory.NewAdapter(cfg)
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
