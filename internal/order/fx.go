package order

import (
	"github.com/matbakhapp/matbakh/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order",
	fx.Provide(
		service.NewService,
	),
)
