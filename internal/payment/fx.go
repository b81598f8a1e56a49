package payment

import (
	"github.com/smallbiznis/launchpad/internal/config"
	"github.com/smallbiznis/launchpad/internal/payment/adapters"
	"github.com/smallbiznis/launchpad/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/launchpad/internal/payment/domain"
	"github.com/smallbiznis/launchpad/internal/payment/repository"
	paymentservice "github.com/smallbiznis/launchpad/internal/payment/service"
	"github.com/smallbiznis/launchpad/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) *adapters.Registry {
		return adapters.NewRegistry(stripe.NewFactory()).
			Configure(paymentdomain.AdapterConfig{
				Provider: stripe.ProviderName,
				Config:   map[string]any{"webhook_secret": cfg.Stripe.WebhookSecret},
			})
	}),
	fx.Provide(func(cfg config.Config, log *zap.Logger) paymentdomain.Gateway {
		return stripe.NewGateway(cfg, log)
	}),
	fx.Provide(paymentservice.New),
	fx.Provide(webhook.NewService),
)
