package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/matbakhapp/matbakh/internal/clock"
	"github.com/matbakhapp/matbakh/internal/config"
	"github.com/matbakhapp/matbakh/internal/events"
	"github.com/matbakhapp/matbakh/internal/kitchen"
	"github.com/matbakhapp/matbakh/internal/logger"
	"github.com/matbakhapp/matbakh/internal/migration"
	"github.com/matbakhapp/matbakh/internal/observability"
	"github.com/matbakhapp/matbakh/internal/order"
	"github.com/matbakhapp/matbakh/internal/providers"
	"github.com/matbakhapp/matbakh/internal/scheduler"
	"github.com/matbakhapp/matbakh/internal/server"
	"github.com/matbakhapp/matbakh/internal/settlement"
	"github.com/matbakhapp/matbakh/internal/stock"
	"github.com/matbakhapp/matbakh/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		events.Module,
		migration.Module,

		// domain
		kitchen.Module,
		stock.Module,
		order.Module,
		settlement.Module,
		providers.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
