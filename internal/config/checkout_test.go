package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCheckoutConfigIsValid(t *testing.T) {
	cfg := DefaultCheckoutConfig()
	require.NoError(t, validateCheckoutConfig(cfg))
	assert.Equal(t, 3*time.Second, cfg.FallbackTimeout)
	assert.Equal(t, "USD", cfg.Currency)
}

func TestValidateCheckoutConfigRejectsBadValues(t *testing.T) {
	cases := map[string]func(*CheckoutConfig){
		"zero timeout":     func(c *CheckoutConfig) { c.FallbackTimeout = 0 },
		"provider timeout": func(c *CheckoutConfig) { c.ProviderTimeout = -time.Second },
		"currency":         func(c *CheckoutConfig) { c.Currency = "dollars" },
		"relative return":  func(c *CheckoutConfig) { c.ReturnPath = "checkout/return" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultCheckoutConfig()
			mutate(&cfg)
			assert.Error(t, validateCheckoutConfig(cfg))
		})
	}
}

func TestSimulationNeverAllowedInProduction(t *testing.T) {
	cfg := Config{Environment: "production", PaymentSimulationEnabled: true}
	assert.False(t, cfg.SimulationAllowed())

	cfg.Environment = "development"
	assert.True(t, cfg.SimulationAllowed())

	cfg.PaymentSimulationEnabled = false
	assert.False(t, cfg.SimulationAllowed())
}

func TestStaticHolderReturnsStoredConfig(t *testing.T) {
	cfg := DefaultCheckoutConfig()
	cfg.FallbackTimeout = 5 * time.Second
	holder := NewStaticCheckoutConfig(cfg)
	assert.Equal(t, 5*time.Second, holder.Get().FallbackTimeout)

	var nilHolder *CheckoutConfigHolder
	assert.Equal(t, DefaultCheckoutConfig().Currency, nilHolder.Get().Currency)
}
