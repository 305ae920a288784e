package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/matbakhapp/matbakh/internal/clock"
	"github.com/matbakhapp/matbakh/internal/config"
	"github.com/matbakhapp/matbakh/internal/events"
	kitchendomain "github.com/matbakhapp/matbakh/internal/kitchen/domain"
	"github.com/matbakhapp/matbakh/internal/observability/metrics"
	settlementdomain "github.com/matbakhapp/matbakh/internal/settlement/domain"
	"github.com/matbakhapp/matbakh/pkg/db/option"
	"github.com/matbakhapp/matbakh/pkg/db/pagination"
	"github.com/matbakhapp/matbakh/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Kitchens kitchendomain.Service
	Settings *config.PlatformSettingsHolder
	Emitter  events.Emitter
	Metrics  *metrics.Metrics
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	kitchens kitchendomain.Service
	settings *config.PlatformSettingsHolder
	emitter  events.Emitter
	metrics  *metrics.Metrics

	invoicerepo repository.Repository[settlementdomain.Invoice]
	linerepo    repository.Repository[settlementdomain.InvoiceLineItem]
	payoutrepo  repository.Repository[settlementdomain.Payout]
}

func NewService(p ServiceParam) settlementdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("settlement.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		kitchens: p.Kitchens,
		settings: p.Settings,
		emitter:  p.Emitter,
		metrics:  p.Metrics,

		invoicerepo: repository.ProvideStore[settlementdomain.Invoice](p.DB),
		linerepo:    repository.ProvideStore[settlementdomain.InvoiceLineItem](p.DB),
		payoutrepo:  repository.ProvideStore[settlementdomain.Payout](p.DB),
	}
}

func (s *Service) GetInvoice(ctx context.Context, id snowflake.ID) (*settlementdomain.Invoice, error) {
	var invoice settlementdomain.Invoice
	err := s.db.WithContext(ctx).
		Preload("LineItems").
		Preload("Payouts").
		First(&invoice, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, settlementdomain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (s *Service) ListInvoices(ctx context.Context, req settlementdomain.ListInvoicesRequest) ([]*settlementdomain.Invoice, *pagination.PageInfo, error) {
	filter := &settlementdomain.Invoice{}
	if req.KitchenID != nil {
		filter.KitchenID = *req.KitchenID
	}
	if req.Status != nil {
		filter.Status = *req.Status
	}
	if req.PeriodMonth != nil {
		filter.PeriodMonth = *req.PeriodMonth
	}

	limit := req.Page.Limit()
	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Field: "created_at", Desc: true}),
		option.WithSortBy(option.QuerySortBy{Field: "id", Desc: true}),
		option.WithLimit(limit + 1),
	}
	if req.Page.PageToken != "" {
		cursor, err := decodeInvoiceCursor(req.Page.PageToken)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, option.WithWhere(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.createdAt, cursor.createdAt, cursor.id,
		))
	}

	invoices, err := s.invoicerepo.Find(ctx, filter, opts...)
	if err != nil {
		return nil, nil, err
	}

	return pagination.Page(invoices, limit, func(inv *settlementdomain.Invoice) pagination.Cursor {
		return pagination.Cursor{
			ID:        inv.ID.String(),
			CreatedAt: inv.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	})
}

type invoiceCursor struct {
	id        snowflake.ID
	createdAt time.Time
}

func decodeInvoiceCursor(token string) (*invoiceCursor, error) {
	raw, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, settlementdomain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(raw.ID)
	if err != nil {
		return nil, settlementdomain.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
	if err != nil {
		return nil, settlementdomain.ErrInvalidPageToken
	}
	return &invoiceCursor{id: id, createdAt: createdAt}, nil
}

func (s *Service) IssueInvoice(ctx context.Context, id snowflake.ID) (*settlementdomain.Invoice, error) {
	invoice, err := s.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != settlementdomain.InvoiceStatusDraft {
		return nil, &settlementdomain.ImmutableInvoiceError{
			InvoiceID: id,
			Status:    invoice.Status,
			Action:    "issue",
		}
	}

	now := s.clock.Now().UTC()
	if err := s.setStatus(ctx, id, invoice.Status, settlementdomain.InvoiceStatusIssued, map[string]any{
		"issued_at": now,
	}); err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx, events.InvoiceIssued{
		InvoiceID:   invoice.ID,
		KitchenID:   invoice.KitchenID,
		PeriodMonth: invoice.PeriodMonth,
	})

	return s.GetInvoice(ctx, id)
}

func (s *Service) LockInvoice(ctx context.Context, id snowflake.ID) (*settlementdomain.Invoice, error) {
	invoice, err := s.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != settlementdomain.InvoiceStatusIssued {
		return nil, &settlementdomain.ImmutableInvoiceError{
			InvoiceID: id,
			Status:    invoice.Status,
			Action:    "lock",
		}
	}

	now := s.clock.Now().UTC()
	if err := s.setStatus(ctx, id, invoice.Status, settlementdomain.InvoiceStatusLocked, map[string]any{
		"locked_at": now,
	}); err != nil {
		return nil, err
	}
	return s.GetInvoice(ctx, id)
}

func (s *Service) VoidInvoice(ctx context.Context, id snowflake.ID, reason string) (*settlementdomain.Invoice, error) {
	invoice, err := s.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	switch invoice.Status {
	case settlementdomain.InvoiceStatusPaid, settlementdomain.InvoiceStatusVoid:
		return nil, &settlementdomain.ImmutableInvoiceError{
			InvoiceID: id,
			Status:    invoice.Status,
			Action:    "void",
		}
	}

	now := s.clock.Now().UTC()
	if err := s.setStatus(ctx, id, invoice.Status, settlementdomain.InvoiceStatusVoid, map[string]any{
		"voided_at":   now,
		"void_reason": reason,
	}); err != nil {
		return nil, err
	}

	s.log.Info("invoice voided",
		zap.Int64("invoice_id", id.Int64()),
		zap.String("reason", reason),
	)

	return s.GetInvoice(ctx, id)
}

// setStatus moves an invoice with a compare-and-set on the previous status so
// two racing transitions cannot both win.
func (s *Service) setStatus(ctx context.Context, id snowflake.ID, from, to settlementdomain.InvoiceStatus, extra map[string]any) error {
	updates := map[string]any{
		"status":     to,
		"updated_at": s.clock.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := s.db.WithContext(ctx).
		Model(&settlementdomain.Invoice{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &settlementdomain.ImmutableInvoiceError{
			InvoiceID: id,
			Status:    from,
			Action:    string(to),
		}
	}
	return nil
}

func timeMonth(period string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01", period)
	if err != nil {
		return time.Time{}, time.Time{}, settlementdomain.ErrInvalidPeriod
	}
	return start, start.AddDate(0, 1, 0), nil
}
