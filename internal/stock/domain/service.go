// Package domain defines the dual-source stock resolution contract.
//
// Stock for an offer lives in exactly one of two places: the offer row
// itself, or the shared catalog dish row for offers that predate per-offer
// stock. The resolver hides which source is authoritative so the legacy
// path can be retired without touching callers.
package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Source string

const (
	SourceOffer   Source = "offer"
	SourceCatalog Source = "catalog"
	SourceNone    Source = "none"
)

// Info is a point-in-time stock read.
type Info struct {
	Available bool
	Stock     int64
	Source    Source
}

// InsufficientStockError is raised when a validation or conditional
// decrement fails. Available carries the stock level the caller may report.
type InsufficientStockError struct {
	OfferID   snowflake.ID
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient_stock: offer %s has %d, requested %d",
		e.OfferID, e.Available, e.Requested)
}

var (
	ErrOfferNotFound     = errors.New("offer_not_found")
	ErrNoStockRecord     = errors.New("no_stock_record")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrOfferNotOrderable = errors.New("offer_not_orderable")
)

type Resolver interface {
	// WithTrx returns a resolver bound to tx so stock mutations join the
	// caller's transaction.
	WithTrx(tx *gorm.DB) Resolver

	GetStock(ctx context.Context, offerID snowflake.ID) (Info, error)
	Validate(ctx context.Context, offerID snowflake.ID, qty int64) error

	// Decrement applies a conditional update (stock >= qty checked
	// atomically). A failed condition returns InsufficientStockError with
	// no mutation.
	Decrement(ctx context.Context, offerID snowflake.ID, qty int64) (Source, error)

	// Increment is the compensating operation for cancellation, refund and
	// rollback. It routes to the same source a decrement would.
	Increment(ctx context.Context, offerID snowflake.ID, qty int64) (Source, error)
}
