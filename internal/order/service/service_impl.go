package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/matbakhapp/matbakh/internal/catalog/domain"
	"github.com/matbakhapp/matbakh/internal/clock"
	"github.com/matbakhapp/matbakh/internal/config"
	"github.com/matbakhapp/matbakh/internal/events"
	kitchendomain "github.com/matbakhapp/matbakh/internal/kitchen/domain"
	"github.com/matbakhapp/matbakh/internal/observability/metrics"
	orderdomain "github.com/matbakhapp/matbakh/internal/order/domain"
	stockdomain "github.com/matbakhapp/matbakh/internal/stock/domain"
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
	Stock    stockdomain.Resolver
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
	stock    stockdomain.Resolver
	kitchens kitchendomain.Service
	settings *config.PlatformSettingsHolder
	emitter  events.Emitter
	metrics  *metrics.Metrics

	orderrepo repository.Repository[orderdomain.Order]
	subrepo   repository.Repository[orderdomain.SubOrder]
	offers    repository.Repository[catalogdomain.Offer]
	dishes    repository.Repository[catalogdomain.CatalogDish]
}

func NewService(p ServiceParam) orderdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("order.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		stock:    p.Stock,
		kitchens: p.Kitchens,
		settings: p.Settings,
		emitter:  p.Emitter,
		metrics:  p.Metrics,

		orderrepo: repository.ProvideStore[orderdomain.Order](p.DB),
		subrepo:   repository.ProvideStore[orderdomain.SubOrder](p.DB),
		offers:    repository.ProvideStore[catalogdomain.Offer](p.DB),
		dishes:    repository.ProvideStore[catalogdomain.CatalogDish](p.DB),
	}
}

func (s *Service) GetOrder(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := s.db.WithContext(ctx).
		Preload("SubOrders").
		Preload("SubOrders.LineItems").
		First(&order, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, orderdomain.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *Service) GetSubOrder(ctx context.Context, id snowflake.ID) (*orderdomain.SubOrder, error) {
	var sub orderdomain.SubOrder
	err := s.db.WithContext(ctx).
		Preload("LineItems").
		First(&sub, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, orderdomain.ErrSubOrderNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (s *Service) UpdateSubOrderStatus(ctx context.Context, req orderdomain.UpdateStatusRequest) (*orderdomain.SubOrder, error) {
	sub, err := s.GetSubOrder(ctx, req.SubOrderID)
	if err != nil {
		return nil, err
	}

	if req.ActorKitchenID != 0 && req.ActorKitchenID != sub.KitchenID {
		return nil, &orderdomain.NotAuthorizedError{
			SubOrderID: sub.ID,
			KitchenID:  req.ActorKitchenID,
		}
	}

	from := sub.Status
	if !orderdomain.CanTransition(from, req.To) {
		return nil, &orderdomain.InvalidTransitionError{
			SubOrderID: sub.ID,
			From:       from,
			To:         req.To,
		}
	}

	now := s.clock.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":     req.To,
			"updated_at": now,
		}

		switch req.To {
		case orderdomain.SubOrderCancelled:
			if err := s.restockLines(ctx, tx, sub.LineItems); err != nil {
				return err
			}
			updates["cancellation_reason"] = req.Reason
		case orderdomain.SubOrderCompleted:
			snapshot, err := s.billingSnapshot(ctx, sub)
			if err != nil {
				return err
			}
			// Snapshot fields are written exactly once; a replayed completion
			// must not re-read live settings.
			if sub.CommissionRateBps == nil {
				commission := applyBps(sub.TotalAmount, snapshot.CommissionRateBps)
				var vat int64
				if snapshot.VAT.Enabled {
					vat = applyBps(commission, snapshot.VAT.RateBps)
				}
				raw, err := json.Marshal(snapshot.VAT)
				if err != nil {
					return err
				}
				updates["commission_rate_bps"] = snapshot.CommissionRateBps
				updates["commission_amount"] = commission
				updates["vat_amount"] = vat
				updates["vat_snapshot"] = raw
			}
			updates["completed_at"] = now
		}

		result := tx.WithContext(ctx).
			Model(&orderdomain.SubOrder{}).
			Where("id = ? AND status = ?", sub.ID, from).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &orderdomain.InvalidTransitionError{
				SubOrderID: sub.ID,
				From:       from,
				To:         req.To,
			}
		}

		return s.refreshOrderStatus(ctx, tx, sub.OrderID, now)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.SubOrderTransitions.WithLabelValues(string(req.To)).Inc()
	s.emitter.Emit(ctx, events.SubOrderStatusChanged{
		OrderID:    sub.OrderID,
		SubOrderID: sub.ID,
		KitchenID:  sub.KitchenID,
		From:       string(from),
		To:         string(req.To),
	})

	return s.GetSubOrder(ctx, sub.ID)
}

func (s *Service) ReportIssue(ctx context.Context, req orderdomain.ReportIssueRequest) (*orderdomain.SubOrder, error) {
	sub, err := s.GetSubOrder(ctx, req.SubOrderID)
	if err != nil {
		return nil, err
	}
	if sub.Status == orderdomain.SubOrderCancelled {
		return nil, &orderdomain.InvalidTransitionError{
			SubOrderID: sub.ID,
			From:       sub.Status,
			To:         sub.Status,
		}
	}

	// The issue flag overlays the current status, it never moves the state
	// machine.
	err = s.db.WithContext(ctx).
		Model(&orderdomain.SubOrder{}).
		Where("id = ?", sub.ID).
		Updates(map[string]any{
			"issue_reported":    true,
			"issue_reported_by": req.ReportedBy,
			"issue_reason":      req.Reason,
			"updated_at":        s.clock.Now().UTC(),
		}).Error
	if err != nil {
		return nil, err
	}

	return s.GetSubOrder(ctx, sub.ID)
}

// restockLines is the compensating path for cancellation. Each line goes back
// to whichever source its checkout decrement came from.
// restockLines reverses the checkout decrements. The increment routes by
// the offer's current stock source, not the LineItem.StockSource snapshot:
// after a source migration the compensation must land where stock now lives.
func (s *Service) restockLines(ctx context.Context, tx *gorm.DB, lines []orderdomain.LineItem) error {
	resolver := s.stock.WithTrx(tx)
	for _, line := range lines {
		if _, err := resolver.Increment(ctx, line.OfferID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) billingSnapshot(ctx context.Context, sub *orderdomain.SubOrder) (orderdomain.BillingSnapshot, error) {
	settings := s.settings.Get()

	kitchen, err := s.kitchens.GetByID(ctx, sub.KitchenID)
	if err != nil {
		return orderdomain.BillingSnapshot{}, err
	}

	vat := settings.VATFor(kitchen.CountryCode)
	return orderdomain.BillingSnapshot{
		CommissionRateBps: settings.CommissionRateBps,
		VAT: orderdomain.VATSnapshot{
			Enabled:         vat.InvoiceVATEnabled,
			RateBps:         vat.InvoiceVATRateBps,
			Label:           vat.VATLabel,
			SettingsVersion: settings.Version,
		},
	}, nil
}

func (s *Service) refreshOrderStatus(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, now time.Time) error {
	var subs []orderdomain.SubOrder
	if err := tx.WithContext(ctx).Where("order_id = ?", orderID).Find(&subs).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"status":     orderdomain.DeriveOverallStatus(subs),
			"updated_at": now,
		}).Error
}

// applyBps applies a basis-point rate to a minor-unit amount, rounding half
// up.
func applyBps(amount, bps int64) int64 {
	return (amount*bps + 5000) / 10000
}
