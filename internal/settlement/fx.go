package settlement

import (
	"github.com/matbakhapp/matbakh/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement",
	fx.Provide(
		service.NewService,
	),
)
