package migration

import (
	"github.com/matbakhapp/matbakh/internal/config"
	"github.com/matbakhapp/matbakh/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		if cfg.Environment == "development" {
			return seed.EnsureDemoMarketplace(conn)
		}
		return nil
	}),
)
