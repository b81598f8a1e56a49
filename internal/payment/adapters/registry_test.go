package adapters

import (
	"testing"

	"github.com/smallbiznis/launchpad/internal/payment/adapters/stripe"
	"github.com/smallbiznis/launchpad/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuildsConfiguredAdapters(t *testing.T) {
	registry := NewRegistry(stripe.NewFactory())
	assert.True(t, registry.ProviderExists(" Stripe "))
	assert.False(t, registry.ProviderExists("paypal"))

	_, err := registry.Adapter("stripe")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	registry.Configure(domain.AdapterConfig{Provider: "STRIPE", Config: map[string]any{"webhook_secret": "whsec_1"}})
	adapter, err := registry.Adapter("stripe")
	require.NoError(t, err)
	assert.NotNil(t, adapter)

	registry.Configure(domain.AdapterConfig{Provider: "stripe", Config: map[string]any{}})
	_, err = registry.Adapter("stripe")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	var nilRegistry *Registry
	_, err = nilRegistry.Adapter("stripe")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}
