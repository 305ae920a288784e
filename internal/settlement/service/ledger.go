package service

import (
	"context"

	"github.com/matbakhapp/matbakh/internal/events"
	kitchendomain "github.com/matbakhapp/matbakh/internal/kitchen/domain"
	settlementdomain "github.com/matbakhapp/matbakh/internal/settlement/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AddPayout appends a ledger entry against an issued invoice. Completed
// payouts increment the paid total, capped at net payable; a completed
// payout that covers the remaining balance closes the invoice as paid.
// Pending and failed payouts are recorded but never touch the total.
func (s *Service) AddPayout(ctx context.Context, req settlementdomain.AddPayoutRequest) (*settlementdomain.Payout, error) {
	if req.Amount <= 0 {
		return nil, settlementdomain.ErrInvalidAmount
	}

	status := req.Status
	if status == "" {
		status = settlementdomain.PayoutStatusCompleted
	}
	switch status {
	case settlementdomain.PayoutStatusPending,
		settlementdomain.PayoutStatusCompleted,
		settlementdomain.PayoutStatusFailed:
	default:
		return nil, settlementdomain.ErrInvalidPayoutStatus
	}

	invoice, err := s.GetInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	switch invoice.Status {
	case settlementdomain.InvoiceStatusIssued, settlementdomain.InvoiceStatusLocked:
	default:
		return nil, &settlementdomain.ImmutableInvoiceError{
			InvoiceID: invoice.ID,
			Status:    invoice.Status,
			Action:    "add payout",
		}
	}

	now := s.clock.Now().UTC()
	payout := &settlementdomain.Payout{
		ID:        s.genID.Generate(),
		InvoiceID: invoice.ID,
		KitchenID: invoice.KitchenID,
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: req.Reference,
		Status:    status,
		Notes:     req.Notes,
		CreatedAt: now,
	}
	if status == settlementdomain.PayoutStatusCompleted {
		payout.PaidAt = &now
	}

	closedInvoice := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if status == settlementdomain.PayoutStatusCompleted {
			// Guarded increment keeps the sum of payouts within net payable
			// even under concurrent writers.
			result := tx.WithContext(ctx).Exec(
				`UPDATE invoices
				 SET amount_paid = amount_paid + ?, updated_at = ?
				 WHERE id = ? AND amount_paid + ? <= net_payable`,
				req.Amount, now, invoice.ID, req.Amount,
			)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return settlementdomain.ErrInvalidAmount
			}

			// Reaching the full net payable closes the invoice.
			result = tx.WithContext(ctx).Exec(
				`UPDATE invoices
				 SET status = ?, paid_at = ?, updated_at = ?
				 WHERE id = ? AND amount_paid >= net_payable AND status IN (?, ?)`,
				settlementdomain.InvoiceStatusPaid, now, now, invoice.ID,
				settlementdomain.InvoiceStatusIssued, settlementdomain.InvoiceStatusLocked,
			)
			if result.Error != nil {
				return result.Error
			}
			closedInvoice = result.RowsAffected == 1
		}
		return s.payoutrepo.WithTrx(tx).Create(ctx, payout)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PayoutsRecorded.Inc()
	if status == settlementdomain.PayoutStatusCompleted {
		s.emitter.Emit(ctx, events.PayoutCompleted{
			InvoiceID: invoice.ID,
			KitchenID: invoice.KitchenID,
			PayoutID:  payout.ID,
			Amount:    payout.Amount,
		})
	}
	if closedInvoice {
		s.metrics.InvoicesPaid.Inc()
		s.emitter.Emit(ctx, events.InvoicePaid{
			InvoiceID: invoice.ID,
			KitchenID: invoice.KitchenID,
		})
	}

	return payout, nil
}

// MarkInvoiceAsPaid is the administrative override: it forces the paid
// total up to net payable and closes the invoice regardless of what the
// ledger covered. Lifts an unpaid_invoice suspension only when asked.
func (s *Service) MarkInvoiceAsPaid(ctx context.Context, req settlementdomain.MarkPaidRequest) (*settlementdomain.Invoice, error) {
	invoice, err := s.GetInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}

	if invoice.Status == settlementdomain.InvoiceStatusPaid {
		return invoice, nil
	}
	switch invoice.Status {
	case settlementdomain.InvoiceStatusIssued, settlementdomain.InvoiceStatusLocked:
	default:
		return nil, &settlementdomain.ImmutableInvoiceError{
			InvoiceID: invoice.ID,
			Status:    invoice.Status,
			Action:    "mark paid",
		}
	}

	now := s.clock.Now().UTC()
	if err := s.setStatus(ctx, req.InvoiceID, invoice.Status, settlementdomain.InvoiceStatusPaid, map[string]any{
		"amount_paid": invoice.NetPayable,
		"paid_at":     now,
	}); err != nil {
		return nil, err
	}

	if req.AutoUnsuspend {
		reactivated, err := s.kitchens.UnsuspendIf(ctx, invoice.KitchenID, kitchendomain.SuspensionReasonUnpaidInvoice)
		if err != nil {
			s.log.Warn("kitchen unsuspend check failed",
				zap.Int64("kitchen_id", invoice.KitchenID.Int64()),
				zap.Error(err),
			)
		} else if reactivated {
			s.log.Info("kitchen reactivated after settlement",
				zap.Int64("kitchen_id", invoice.KitchenID.Int64()),
				zap.Int64("invoice_id", invoice.ID.Int64()),
			)
		}
	}

	s.metrics.InvoicesPaid.Inc()
	s.emitter.Emit(ctx, events.InvoicePaid{
		InvoiceID: invoice.ID,
		KitchenID: invoice.KitchenID,
	})

	return s.GetInvoice(ctx, req.InvoiceID)
}
