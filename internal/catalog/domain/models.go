// Package domain contains persistence models for the dish catalog consumed
// by checkout. Catalog authoring itself happens elsewhere.
package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/matbakhapp/matbakh/internal/preptime"
	"gorm.io/datatypes"
)

// Offer is a kitchen's priced, stocked listing of a catalog dish.
//
// Stock is nullable on purpose: offers created before per-offer stock keep
// it NULL and defer to the shared CatalogDish.Stock until migrated.
type Offer struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	KitchenID       snowflake.ID   `gorm:"not null;index;uniqueIndex:ux_offers_kitchen_dish,priority:1"`
	CatalogDishID   snowflake.ID   `gorm:"not null;index;uniqueIndex:ux_offers_kitchen_dish,priority:2"`
	Price           int64          `gorm:"not null"`
	Stock           *int64         `gorm:""`
	PrepReadyConfig datatypes.JSON `gorm:"type:jsonb"`
	PickupEnabled   bool           `gorm:"not null;default:true"`
	DeliveryEnabled bool           `gorm:"not null;default:false"`
	DeliveryFee     int64          `gorm:"not null;default:0"`
	Active          bool           `gorm:"not null;default:true;index"`
	CreatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Offer) TableName() string { return "offers" }

// TimingRule decodes the offer's prep-ready configuration.
func (o Offer) TimingRule() (preptime.Config, error) {
	var cfg preptime.Config
	if len(o.PrepReadyConfig) == 0 {
		return cfg, nil
	}
	err := json.Unmarshal(o.PrepReadyConfig, &cfg)
	return cfg, err
}

// SetTimingRule encodes cfg onto the offer.
func (o *Offer) SetTimingRule(cfg preptime.Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	o.PrepReadyConfig = raw
	return nil
}

// CatalogDish is the shared dish record. Its Stock column is the legacy
// stock source still used by unmigrated offers.
type CatalogDish struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	Name        string       `gorm:"type:text;not null"`
	Image       string       `gorm:"type:text"`
	Description string       `gorm:"type:text"`
	Stock       int64        `gorm:"not null;default:0"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CatalogDish) TableName() string { return "catalog_dishes" }
