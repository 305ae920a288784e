// Package domain contains the kitchen account model this core needs:
// identity plus suspension state. Full account management lives elsewhere.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type KitchenStatus string

const (
	KitchenStatusActive    KitchenStatus = "active"
	KitchenStatusSuspended KitchenStatus = "suspended"
)

// SuspensionReasonUnpaidInvoice is the only reason this core acts on: paying
// off an invoice may lift it.
const SuspensionReasonUnpaidInvoice = "unpaid_invoice"

type Kitchen struct {
	ID               snowflake.ID  `gorm:"primaryKey"`
	Name             string        `gorm:"type:text;not null"`
	City             string        `gorm:"type:text"`
	CountryCode      string        `gorm:"type:text;not null;default:'SA'"`
	Status           KitchenStatus `gorm:"type:text;not null;default:'active';index"`
	SuspensionReason string        `gorm:"type:text"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Kitchen) TableName() string { return "kitchens" }

type Service interface {
	GetByID(ctx context.Context, id snowflake.ID) (Kitchen, error)
	Suspend(ctx context.Context, id snowflake.ID, reason string) error
	// UnsuspendIf lifts a suspension only when it was applied for the given
	// reason. Returns true when the kitchen was reactivated.
	UnsuspendIf(ctx context.Context, id snowflake.ID, reason string) (bool, error)
}
