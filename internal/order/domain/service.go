package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrOrderNotFound    = errors.New("order_not_found")
	ErrSubOrderNotFound = errors.New("sub_order_not_found")
	ErrEmptyCart        = errors.New("empty_cart")
)

// CartLine is one entry of the incoming cart, before decomposition.
type CartLine struct {
	OfferID  snowflake.ID `json:"offerId"`
	Quantity int64        `json:"quantity"`
	Notes    string       `json:"notes,omitempty"`
}

// KitchenPreference carries the customer's per-kitchen fulfillment choices.
type KitchenPreference struct {
	FulfillmentMode  FulfillmentMode  `json:"fulfillmentMode"`
	TimingPreference TimingPreference `json:"timingPreference"`
}

type CheckoutRequest struct {
	CustomerID      snowflake.ID                       `json:"customerId"`
	Lines           []CartLine                         `json:"lines"`
	DeliveryAddress Address                            `json:"deliveryAddress"`
	Preferences     map[snowflake.ID]KitchenPreference `json:"preferences,omitempty"`
	IdempotencyKey  string                             `json:"idempotencyKey,omitempty"`
}

type UpdateStatusRequest struct {
	SubOrderID snowflake.ID   `json:"subOrderId"`
	To         SubOrderStatus `json:"to"`
	// ActorKitchenID, when set, restricts the update to the owning kitchen.
	ActorKitchenID snowflake.ID `json:"actorKitchenId,omitempty"`
	Reason         string       `json:"reason,omitempty"`
}

type ReportIssueRequest struct {
	SubOrderID snowflake.ID `json:"subOrderId"`
	ReportedBy string       `json:"reportedBy"`
	Reason     string       `json:"reason"`
}

type Service interface {
	Checkout(ctx context.Context, req CheckoutRequest) (*Order, error)
	GetOrder(ctx context.Context, id snowflake.ID) (*Order, error)
	GetSubOrder(ctx context.Context, id snowflake.ID) (*SubOrder, error)
	UpdateSubOrderStatus(ctx context.Context, req UpdateStatusRequest) (*SubOrder, error)
	ReportIssue(ctx context.Context, req ReportIssueRequest) (*SubOrder, error)
}

// ValidationError rejects a checkout before any stock is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError reports an illegal state-machine move.
type InvalidTransitionError struct {
	SubOrderID snowflake.ID
	From       SubOrderStatus
	To         SubOrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("sub-order %s: cannot transition from %s to %s", e.SubOrderID, e.From, e.To)
}

// NotAuthorizedError reports a kitchen acting on a sub-order it does not own.
type NotAuthorizedError struct {
	SubOrderID snowflake.ID
	KitchenID  snowflake.ID
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("kitchen %s is not allowed to update sub-order %s", e.KitchenID, e.SubOrderID)
}
