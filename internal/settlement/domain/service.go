package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/matbakhapp/matbakh/pkg/db/pagination"
)

var (
	ErrInvoiceNotFound     = errors.New("invoice_not_found")
	ErrNoBillableActivity  = errors.New("no_billable_activity")
	ErrInvalidPeriod       = errors.New("invalid_period")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidPayoutStatus = errors.New("invalid_payout_status")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
)

// DuplicateInvoiceError means a non-void invoice already covers the period.
type DuplicateInvoiceError struct {
	KitchenID   snowflake.ID
	PeriodMonth string
}

func (e *DuplicateInvoiceError) Error() string {
	return fmt.Sprintf("invoice already exists for kitchen %s period %s", e.KitchenID, e.PeriodMonth)
}

// ImmutableInvoiceError rejects a mutation the invoice's status forbids.
type ImmutableInvoiceError struct {
	InvoiceID snowflake.ID
	Status    InvoiceStatus
	Action    string
}

func (e *ImmutableInvoiceError) Error() string {
	return fmt.Sprintf("invoice %s is %s: cannot %s", e.InvoiceID, e.Status, e.Action)
}

type GenerateInvoiceRequest struct {
	KitchenID snowflake.ID `json:"kitchenId"`
	// PeriodMonth is a calendar month in "2006-01" form.
	PeriodMonth string `json:"periodMonth"`
}

type AddPayoutRequest struct {
	InvoiceID snowflake.ID `json:"invoiceId"`
	Amount    int64        `json:"amount"`
	Method    string       `json:"method,omitempty"`
	Reference string       `json:"reference,omitempty"`
	// Status defaults to completed. Only completed payouts count toward the
	// invoice's paid total.
	Status PayoutStatus `json:"status,omitempty"`
	Notes  string       `json:"notes,omitempty"`
}

type MarkPaidRequest struct {
	InvoiceID snowflake.ID `json:"invoiceId"`
	// AutoUnsuspend lifts an unpaid_invoice kitchen suspension along with
	// the payment. Off unless the caller asks for it.
	AutoUnsuspend bool `json:"autoUnsuspend,omitempty"`
}

type ListInvoicesRequest struct {
	KitchenID   *snowflake.ID  `json:"kitchenId,omitempty"`
	Status      *InvoiceStatus `json:"status,omitempty"`
	PeriodMonth *string        `json:"periodMonth,omitempty"`

	Page pagination.Pagination `json:"page,omitempty"`
}

type Service interface {
	// GenerateInvoice builds the settlement invoice for one kitchen-month
	// from snapshotted sub-order figures. At most one non-void invoice may
	// exist per kitchen-month.
	GenerateInvoice(ctx context.Context, req GenerateInvoiceRequest) (*Invoice, error)

	GetInvoice(ctx context.Context, id snowflake.ID) (*Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]*Invoice, *pagination.PageInfo, error)

	IssueInvoice(ctx context.Context, id snowflake.ID) (*Invoice, error)
	LockInvoice(ctx context.Context, id snowflake.ID) (*Invoice, error)
	VoidInvoice(ctx context.Context, id snowflake.ID, reason string) (*Invoice, error)

	// AddPayout appends a ledger entry against an issued invoice. A
	// completed payout that covers the remaining balance closes the
	// invoice as paid.
	AddPayout(ctx context.Context, req AddPayoutRequest) (*Payout, error)

	// MarkInvoiceAsPaid is the administrative override: it settles any
	// outstanding balance and closes the invoice. Calling it on an already
	// paid invoice is a no-op.
	MarkInvoiceAsPaid(ctx context.Context, req MarkPaidRequest) (*Invoice, error)
}
