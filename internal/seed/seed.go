// Package seed bootstraps demo marketplace data for local development.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/matbakhapp/matbakh/internal/catalog/domain"
	kitchendomain "github.com/matbakhapp/matbakh/internal/kitchen/domain"
	"github.com/matbakhapp/matbakh/internal/preptime"
	"gorm.io/gorm"
)

const demoKitchenName = "Bayt Al Kabsa"

// EnsureDemoMarketplace seeds one kitchen with a small menu so a fresh
// development database can take orders immediately. Running it twice is a
// no-op.
func EnsureDemoMarketplace(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing kitchendomain.Kitchen
		err := tx.Where("name = ?", demoKitchenName).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		kitchen := kitchendomain.Kitchen{
			ID:          node.Generate(),
			Name:        demoKitchenName,
			City:        "Riyadh",
			CountryCode: "SA",
			Status:      kitchendomain.KitchenStatusActive,
		}
		if err := tx.Create(&kitchen).Error; err != nil {
			return err
		}

		menu := []struct {
			name   string
			price  int64
			stock  int64
			timing preptime.Config
		}{
			{
				name:   "Chicken Kabsa",
				price:  6500,
				stock:  20,
				timing: preptime.Config{OptionType: preptime.OptionFixed, PrepTimeMinutes: 45},
			},
			{
				name:   "Lamb Mandi",
				price:  9500,
				stock:  10,
				timing: preptime.Config{OptionType: preptime.OptionRange, PrepTimeMinMinutes: 60, PrepTimeMaxMinutes: 90},
			},
			{
				name:  "Jareesh",
				price: 4500,
				stock: 15,
				timing: preptime.Config{
					OptionType:            preptime.OptionCutoff,
					CutoffTime:            "14:00",
					BeforeCutoffReadyTime: "18:00",
					AfterCutoffReadyTime:  "12:00",
					AfterCutoffDayOffset:  1,
				},
			},
		}

		for _, item := range menu {
			dish := catalogdomain.CatalogDish{
				ID:   node.Generate(),
				Name: item.name,
			}
			if err := tx.Create(&dish).Error; err != nil {
				return err
			}

			stock := item.stock
			offer := catalogdomain.Offer{
				ID:            node.Generate(),
				KitchenID:     kitchen.ID,
				CatalogDishID: dish.ID,
				Price:         item.price,
				Stock:         &stock,
				PickupEnabled: true,
				Active:        true,
			}
			if err := offer.SetTimingRule(item.timing); err != nil {
				return err
			}
			if err := tx.Create(&offer).Error; err != nil {
				return err
			}
		}

		return nil
	})
}
