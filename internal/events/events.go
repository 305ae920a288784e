// Package events defines the domain events this core emits for the external
// notification collaborator. Rendering and delivery are not our concern;
// payloads carry only the ids needed for routing.
package events

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Event interface {
	Name() string
}

type OrderCreated struct {
	OrderID     snowflake.ID
	CustomerID  snowflake.ID
	SubOrderIDs []snowflake.ID
	TotalAmount int64
}

func (OrderCreated) Name() string { return "order.created" }

type SubOrderStatusChanged struct {
	OrderID    snowflake.ID
	SubOrderID snowflake.ID
	KitchenID  snowflake.ID
	From       string
	To         string
}

func (SubOrderStatusChanged) Name() string { return "sub_order.status_changed" }

type InvoiceIssued struct {
	InvoiceID   snowflake.ID
	KitchenID   snowflake.ID
	PeriodMonth string
}

func (InvoiceIssued) Name() string { return "invoice.issued" }

type PayoutCompleted struct {
	InvoiceID snowflake.ID
	KitchenID snowflake.ID
	PayoutID  snowflake.ID
	Amount    int64
}

func (PayoutCompleted) Name() string { return "payout.completed" }

type InvoicePaid struct {
	InvoiceID snowflake.ID
	KitchenID snowflake.ID
}

func (InvoicePaid) Name() string { return "invoice.paid" }

// Emitter hands events to whatever transport the application wires in.
// Emit must not block request handling.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}
