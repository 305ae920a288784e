package providers

import (
	"github.com/matbakhapp/matbakh/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	pdf.Module,
)
