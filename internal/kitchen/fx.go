package kitchen

import (
	"github.com/matbakhapp/matbakh/internal/kitchen/service"
	"go.uber.org/fx"
)

var Module = fx.Module("kitchen.service",
	fx.Provide(service.NewService),
)
