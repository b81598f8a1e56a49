package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// CheckoutConfig is the hot-reloadable checkout policy.
type CheckoutConfig struct {
	FallbackTimeout time.Duration `mapstructure:"fallbackTimeout"`
	ProviderTimeout time.Duration `mapstructure:"providerTimeout"`
	Currency        string        `mapstructure:"currency"`
	ReturnPath      string        `mapstructure:"returnPath"`
	CancelPath      string        `mapstructure:"cancelPath"`
}

func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		FallbackTimeout: getenvDuration("CHECKOUT_FALLBACK_TIMEOUT", 3*time.Second),
		ProviderTimeout: getenvDuration("CHECKOUT_PROVIDER_TIMEOUT", 12*time.Second),
		Currency:        "USD",
		ReturnPath:      "/checkout/return",
		CancelPath:      "/checkout/cancel",
	}
}

type CheckoutConfigHolder struct {
	current atomic.Value // holds CheckoutConfig
}

// NewStaticCheckoutConfig returns a holder that never reloads.
func NewStaticCheckoutConfig(cfg CheckoutConfig) *CheckoutConfigHolder {
	holder := &CheckoutConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewCheckoutConfigHolder() (*CheckoutConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("checkout")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/launchpad")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LAUNCHPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultCheckoutConfig()
	v.SetDefault("checkout.fallbackTimeout", defaults.FallbackTimeout)
	v.SetDefault("checkout.providerTimeout", defaults.ProviderTimeout)
	v.SetDefault("checkout.currency", defaults.Currency)
	v.SetDefault("checkout.returnPath", defaults.ReturnPath)
	v.SetDefault("checkout.cancelPath", defaults.CancelPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg CheckoutConfig
	if err := v.UnmarshalKey("checkout", &cfg); err != nil {
		return nil, err
	}
	if err := validateCheckoutConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticCheckoutConfig(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CheckoutConfig
		if err := v.UnmarshalKey("checkout", &updated); err != nil {
			log.Printf("[checkout-config] reload failed: %v", err)
			return
		}
		if err := validateCheckoutConfig(updated); err != nil {
			log.Printf("[checkout-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[checkout-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *CheckoutConfigHolder) Get() CheckoutConfig {
	if h == nil {
		return DefaultCheckoutConfig()
	}
	return h.current.Load().(CheckoutConfig)
}

func validateCheckoutConfig(cfg CheckoutConfig) error {
	if cfg.FallbackTimeout <= 0 {
		return errors.New("checkout.fallbackTimeout must be positive")
	}
	if cfg.ProviderTimeout <= 0 {
		return errors.New("checkout.providerTimeout must be positive")
	}
	if len(strings.TrimSpace(cfg.Currency)) != 3 {
		return errors.New("checkout.currency must be an ISO 4217 code")
	}
	if !strings.HasPrefix(cfg.ReturnPath, "/") || !strings.HasPrefix(cfg.CancelPath, "/") {
		return errors.New("checkout return and cancel paths must be absolute")
	}
	return nil
}
