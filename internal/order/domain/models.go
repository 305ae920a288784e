// Package domain contains the order aggregate: one customer order split
// into per-kitchen sub-orders with line items snapshotted at checkout.
package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type FulfillmentMode string

const (
	FulfillmentPickup   FulfillmentMode = "pickup"
	FulfillmentDelivery FulfillmentMode = "delivery"
)

type TimingPreference string

const (
	TimingSeparate TimingPreference = "separate"
	TimingCombined TimingPreference = "combined"
)

// Address is the immutable delivery address snapshot taken at checkout.
type Address struct {
	Line1       string  `json:"line1"`
	Line2       string  `json:"line2,omitempty"`
	City        string  `json:"city"`
	CountryCode string  `json:"countryCode"`
	Label       string  `json:"label,omitempty"`
	Notes       string  `json:"notes,omitempty"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// ProductSnapshot preserves how a dish looked when it was ordered.
type ProductSnapshot struct {
	Name        string `json:"name"`
	Image       string `json:"image,omitempty"`
	Description string `json:"description,omitempty"`
}

// VATSnapshot is the VAT rule frozen onto a sub-order at completion.
type VATSnapshot struct {
	Enabled         bool   `json:"enabled"`
	RateBps         int64  `json:"rateBps"`
	Label           string `json:"label"`
	SettingsVersion string `json:"settingsVersion,omitempty"`
}

// BillingSnapshot is the versioned platform-settings value object handed to
// the completion step. It is captured once and never re-read from live
// settings.
type BillingSnapshot struct {
	CommissionRateBps int64
	VAT               VATSnapshot
}

type Order struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	CustomerID      snowflake.ID   `gorm:"not null;index"`
	DeliveryAddress datatypes.JSON `gorm:"type:jsonb"`
	TotalAmount     int64          `gorm:"not null"`
	Status          OrderStatus    `gorm:"type:text;not null;default:'pending';index"`
	IdempotencyKey  *string        `gorm:"type:text;uniqueIndex:ux_orders_idempotency_key"`
	CreatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
	UpdatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`

	SubOrders []SubOrder `gorm:"foreignKey:OrderID"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// Address decodes the delivery address snapshot.
func (o Order) Address() (Address, error) {
	var addr Address
	if len(o.DeliveryAddress) == 0 {
		return addr, nil
	}
	err := json.Unmarshal(o.DeliveryAddress, &addr)
	return addr, err
}

type SubOrder struct {
	ID                snowflake.ID     `gorm:"primaryKey"`
	OrderID           snowflake.ID     `gorm:"not null;index"`
	KitchenID         snowflake.ID     `gorm:"not null;index"`
	FulfillmentMode   FulfillmentMode  `gorm:"type:text;not null;default:'pickup'"`
	TimingPreference  TimingPreference `gorm:"type:text;not null;default:'separate'"`
	CombinedReadyTime *time.Time       `gorm:""`
	DeliveryFee       int64            `gorm:"not null;default:0"`
	Status            SubOrderStatus   `gorm:"type:text;not null;default:'order_received';index"`
	TotalAmount       int64            `gorm:"not null"`

	// Commission/VAT are snapshotted exactly once, when the sub-order
	// completes. NULL until then.
	CommissionRateBps *int64         `gorm:""`
	CommissionAmount  *int64         `gorm:""`
	VATAmount         *int64         `gorm:""`
	VATSnapshot       datatypes.JSON `gorm:"type:jsonb"`

	IssueReported      bool   `gorm:"not null;default:false"`
	IssueReportedBy    string `gorm:"type:text"`
	IssueReason        string `gorm:"type:text"`
	CancellationReason string `gorm:"type:text"`

	CompletedAt *time.Time `gorm:""`
	CreatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`

	LineItems []LineItem `gorm:"foreignKey:SubOrderID"`
}

// TableName sets the database table name.
func (SubOrder) TableName() string { return "sub_orders" }

// VAT decodes the VAT snapshot, if one was taken.
func (s SubOrder) VAT() (VATSnapshot, error) {
	var snap VATSnapshot
	if len(s.VATSnapshot) == 0 {
		return snap, nil
	}
	err := json.Unmarshal(s.VATSnapshot, &snap)
	return snap, err
}

type LineItem struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	SubOrderID       snowflake.ID `gorm:"not null;index"`
	OfferID          snowflake.ID `gorm:"not null;index"`
	Quantity         int64        `gorm:"not null"`
	UnitPriceAtOrder int64        `gorm:"not null"`

	PrepReadyConfigSnapshot datatypes.JSON `gorm:"type:jsonb"`
	ReadyAt                 time.Time      `gorm:"not null"`
	ReadyAtMin              *time.Time     `gorm:""`
	ReadyDisplay            string         `gorm:"type:text"`

	ProductSnapshot datatypes.JSON `gorm:"type:jsonb"`

	// StockSource records which stock tier was decremented at checkout.
	StockSource string    `gorm:"type:text;not null"`
	Notes       string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LineItem) TableName() string { return "order_line_items" }
