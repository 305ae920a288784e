package stock

import (
	"github.com/matbakhapp/matbakh/internal/stock/service"
	"go.uber.org/fx"
)

var Module = fx.Module("stock.resolver",
	fx.Provide(service.NewResolver),
)
