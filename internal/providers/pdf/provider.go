// Package pdf renders monthly settlement statements for kitchens.
package pdf

import (
	"context"
	"io"
)

// StatementLine is one completed sub-order on the statement.
type StatementLine struct {
	SubOrderID     string
	CompletedAt    string
	Gross          string
	CommissionRate string
	Commission     string
	VAT            string
	Net            string
}

// StatementData is everything the renderer needs, already formatted for
// display. Money formatting happens at the caller so the renderer stays
// currency-agnostic.
type StatementData struct {
	PlatformName  string
	InvoiceNumber string
	PeriodMonth   string
	IssueDate     string
	Status        string

	KitchenName string
	KitchenCity string

	Lines []StatementLine

	GrossSales      string
	CommissionTotal string
	VATLabel        string
	VATTotal        string
	NetPayable      string
	AmountPaid      string
	AmountDue       string
}

type Provider interface {
	RenderStatement(ctx context.Context, data StatementData) (io.Reader, error)
}

// NoOpProvider is used when statement rendering is disabled.
type NoOpProvider struct{}

func (p *NoOpProvider) RenderStatement(ctx context.Context, data StatementData) (io.Reader, error) {
	return nil, nil
}
