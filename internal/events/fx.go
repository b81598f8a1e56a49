package events

import (
	"context"

	"github.com/smallbiznis/launchpad/internal/events/amqp"
	"github.com/smallbiznis/launchpad/internal/events/domain"
	"github.com/smallbiznis/launchpad/internal/events/repository"
	"github.com/smallbiznis/launchpad/internal/events/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events.service",
	fx.Provide(repository.Provide),
	fx.Provide(amqp.Provide),
	fx.Provide(service.New),
	fx.Provide(func(s *service.Service) domain.Recorder { return s }),
	fx.Provide(func(s *service.Service) domain.Dispatcher { return s }),
	fx.Invoke(registerPendingDispatch),
)

// AsSubscriber annotates a constructor so its result joins the dispatcher's subscriber group.
func AsSubscriber(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(domain.Subscriber)),
		fx.ResultTags(`group:"event_subscribers"`),
	)
}

func registerPendingDispatch(lc fx.Lifecycle, dispatcher domain.Dispatcher, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := dispatcher.DispatchPending(context.Background()); err != nil {
					log.Warn("dispatch pending events failed", zap.Error(err))
				}
			}()
			return nil
		},
	})
}
