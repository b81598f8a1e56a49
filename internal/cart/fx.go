package cart

import (
	"github.com/smallbiznis/launchpad/internal/cart/kv"
	"github.com/smallbiznis/launchpad/internal/cart/service"
	"github.com/smallbiznis/launchpad/internal/events"
	"go.uber.org/fx"
)

var Module = fx.Module("cart.service",
	fx.Provide(kv.Provide),
	fx.Provide(service.New),
	fx.Provide(events.AsSubscriber(service.NewClearOnPaid)),
)
