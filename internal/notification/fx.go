package notification

import (
	"github.com/smallbiznis/launchpad/internal/events"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(events.AsSubscriber(NewEmailNotifier)),
	fx.Provide(events.AsSubscriber(NewWhatsAppNotifier)),
)
