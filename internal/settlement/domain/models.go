// Package domain contains persistence models for monthly kitchen settlement.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft  InvoiceStatus = "draft"
	InvoiceStatusIssued InvoiceStatus = "issued"
	InvoiceStatusLocked InvoiceStatus = "locked"
	InvoiceStatusPaid   InvoiceStatus = "paid"
	InvoiceStatusVoid   InvoiceStatus = "void"
)

// Invoice is one kitchen's settlement for one calendar month. Amounts come
// from the commission and VAT figures frozen on each sub-order at completion,
// never from live platform settings.
type Invoice struct {
	ID            snowflake.ID  `gorm:"primaryKey"`
	KitchenID     snowflake.ID  `gorm:"not null;index"`
	PeriodMonth   string        `gorm:"type:text;not null;index"`
	InvoiceNumber string        `gorm:"type:text;not null;uniqueIndex:ux_invoices_number"`
	Status        InvoiceStatus `gorm:"type:text;not null;default:'draft';index"`
	Currency      string        `gorm:"type:text;not null"`

	GrossSales      int64 `gorm:"not null;default:0"`
	CommissionTotal int64 `gorm:"not null;default:0"`
	VATTotal        int64 `gorm:"not null;default:0"`
	// NetPayable is what the platform owes the kitchen for the period.
	NetPayable int64 `gorm:"not null;default:0"`
	AmountPaid int64 `gorm:"not null;default:0"`

	// CommissionRate is the aggregate effective rate in percent, kept for
	// display on statements.
	CommissionRate float64 `gorm:"not null;default:0"`
	VATLabel       string  `gorm:"type:text"`

	IssuedAt   *time.Time `gorm:""`
	LockedAt   *time.Time `gorm:""`
	PaidAt     *time.Time `gorm:""`
	VoidedAt   *time.Time `gorm:""`
	VoidReason string     `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`

	LineItems []InvoiceLineItem `gorm:"foreignKey:InvoiceID"`
	Payouts   []Payout          `gorm:"foreignKey:InvoiceID"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// AmountDue is the outstanding balance owed to the kitchen.
func (i Invoice) AmountDue() int64 { return i.NetPayable - i.AmountPaid }

// InvoiceLineItem is one completed sub-order's contribution to an invoice.
type InvoiceLineItem struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	InvoiceID  snowflake.ID `gorm:"not null;index"`
	SubOrderID snowflake.ID `gorm:"not null;index"`

	Gross             int64     `gorm:"not null"`
	CommissionRateBps int64     `gorm:"not null"`
	CommissionAmount  int64     `gorm:"not null"`
	VATAmount         int64     `gorm:"not null"`
	Net               int64     `gorm:"not null"`
	CompletedAt       time.Time `gorm:"not null"`
	CreatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InvoiceLineItem) TableName() string { return "invoice_line_items" }

type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusCompleted PayoutStatus = "completed"
	PayoutStatusFailed    PayoutStatus = "failed"
)

// Payout is one ledger entry of money moved to a kitchen against an invoice.
type Payout struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	InvoiceID snowflake.ID `gorm:"not null;index"`
	KitchenID snowflake.ID `gorm:"not null;index"`
	Amount    int64        `gorm:"not null"`
	Method    string       `gorm:"type:text"`
	Reference string       `gorm:"type:text"`
	Status    PayoutStatus `gorm:"type:text;not null;default:'pending'"`
	PaidAt    *time.Time   `gorm:""`
	Notes     string       `gorm:"type:text"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payout) TableName() string { return "payouts" }
