package launch

import (
	"github.com/smallbiznis/launchpad/internal/launch/repository"
	"github.com/smallbiznis/launchpad/internal/launch/service"
	"go.uber.org/fx"
)

var Module = fx.Module("launch.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
