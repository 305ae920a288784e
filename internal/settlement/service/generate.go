package service

import (
	"context"
	"fmt"
	"strings"

	orderdomain "github.com/matbakhapp/matbakh/internal/order/domain"
	settlementdomain "github.com/matbakhapp/matbakh/internal/settlement/domain"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GenerateInvoice builds one kitchen-month settlement invoice. Every figure
// is taken from the commission and VAT snapshots frozen on the sub-orders at
// completion; the platform settings current at generation time never leak in.
func (s *Service) GenerateInvoice(ctx context.Context, req settlementdomain.GenerateInvoiceRequest) (*settlementdomain.Invoice, error) {
	if req.KitchenID == 0 {
		return nil, settlementdomain.ErrInvoiceNotFound
	}
	periodStart, periodEnd, err := timeMonth(req.PeriodMonth)
	if err != nil {
		return nil, err
	}

	if _, err := s.kitchens.GetByID(ctx, req.KitchenID); err != nil {
		return nil, err
	}

	var subs []orderdomain.SubOrder
	err = s.db.WithContext(ctx).
		Where("kitchen_id = ? AND status = ? AND completed_at >= ? AND completed_at < ?",
			req.KitchenID, orderdomain.SubOrderCompleted, periodStart, periodEnd).
		Order("completed_at ASC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, settlementdomain.ErrNoBillableActivity
	}

	now := s.clock.Now().UTC()
	invoice := &settlementdomain.Invoice{
		ID:            s.genID.Generate(),
		KitchenID:     req.KitchenID,
		PeriodMonth:   req.PeriodMonth,
		InvoiceNumber: s.invoiceNumber(req.PeriodMonth),
		Status:        settlementdomain.InvoiceStatusDraft,
		Currency:      s.settings.Get().Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	lines := make([]*settlementdomain.InvoiceLineItem, 0, len(subs))
	for _, sub := range subs {
		line := settlementdomain.InvoiceLineItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoice.ID,
			SubOrderID:  sub.ID,
			Gross:       sub.TotalAmount,
			CompletedAt: *sub.CompletedAt,
			CreatedAt:   now,
		}
		if sub.CommissionRateBps != nil {
			line.CommissionRateBps = *sub.CommissionRateBps
		}
		if sub.CommissionAmount != nil {
			line.CommissionAmount = *sub.CommissionAmount
		}
		if sub.VATAmount != nil {
			line.VATAmount = *sub.VATAmount
		}
		line.Net = line.Gross - line.CommissionAmount - line.VATAmount
		lines = append(lines, &line)

		invoice.GrossSales += line.Gross
		invoice.CommissionTotal += line.CommissionAmount
		invoice.VATTotal += line.VATAmount

		if invoice.VATLabel == "" {
			if snap, err := sub.VAT(); err == nil && snap.Label != "" {
				invoice.VATLabel = snap.Label
			}
		}
	}
	invoice.NetPayable = invoice.GrossSales - invoice.CommissionTotal - invoice.VATTotal
	if invoice.GrossSales > 0 {
		invoice.CommissionRate = float64(invoice.CommissionTotal) / float64(invoice.GrossSales) * 100
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The partial unique index on (kitchen_id, period_month) for non-void
		// invoices makes the conflict check atomic.
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(invoice)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &settlementdomain.DuplicateInvoiceError{
				KitchenID:   req.KitchenID,
				PeriodMonth: req.PeriodMonth,
			}
		}
		return s.linerepo.WithTrx(tx).BatchCreate(ctx, lines)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.InvoicesGenerated.Inc()
	s.log.Info("invoice generated",
		zap.Int64("invoice_id", invoice.ID.Int64()),
		zap.Int64("kitchen_id", req.KitchenID.Int64()),
		zap.String("period", req.PeriodMonth),
		zap.Int64("net_payable", invoice.NetPayable),
	)

	return s.GetInvoice(ctx, invoice.ID)
}

func (s *Service) invoiceNumber(period string) string {
	return fmt.Sprintf("INV-%s-%s", strings.ReplaceAll(period, "-", ""), ulid.Make().String())
}
