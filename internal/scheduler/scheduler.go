// Package scheduler drives the monthly settlement run: once a calendar month
// closes, every kitchen with completed sub-orders in it gets an invoice.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/matbakhapp/matbakh/internal/clock"
	orderdomain "github.com/matbakhapp/matbakh/internal/order/domain"
	settlementdomain "github.com/matbakhapp/matbakh/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	SettlementSvc settlementdomain.Service
	Config        Config `optional:"true"`
}

type Scheduler struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           Config
	clock         clock.Clock
	settlementSvc settlementdomain.Service
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:            p.DB,
		log:           p.Log.Named("scheduler"),
		cfg:           p.Config.withDefaults(),
		clock:         p.Clock,
		settlementSvc: p.SettlementSvc,
	}
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("settlement run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce settles the most recently closed month. Kitchens already invoiced
// for the period are skipped; the run is safe to repeat.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	period := previousMonth(s.clock.Now().UTC())
	return s.SettlePeriod(ctx, period)
}

// SettlePeriod generates invoices for every kitchen with billable activity in
// the given "2006-01" period.
func (s *Scheduler) SettlePeriod(ctx context.Context, period string) error {
	start, err := time.Parse("2006-01", period)
	if err != nil {
		return settlementdomain.ErrInvalidPeriod
	}
	end := start.AddDate(0, 1, 0)

	var kitchenIDs []snowflake.ID
	err = s.db.WithContext(ctx).
		Model(&orderdomain.SubOrder{}).
		Distinct("kitchen_id").
		Where("status = ? AND completed_at >= ? AND completed_at < ?",
			orderdomain.SubOrderCompleted, start, end).
		Limit(s.cfg.BatchSize).
		Pluck("kitchen_id", &kitchenIDs).Error
	if err != nil {
		return err
	}

	var runErr error
	var generated int
	for _, kitchenID := range kitchenIDs {
		_, err := s.settlementSvc.GenerateInvoice(ctx, settlementdomain.GenerateInvoiceRequest{
			KitchenID:   kitchenID,
			PeriodMonth: period,
		})
		switch {
		case err == nil:
			generated++
		case isAlreadySettled(err):
			// settled on a previous tick
		default:
			runErr = errors.Join(runErr, err)
		}
	}

	if generated > 0 {
		s.log.Info("settlement run complete",
			zap.String("period", period),
			zap.Int("invoices_generated", generated),
			zap.Int("kitchens_seen", len(kitchenIDs)),
		)
	}
	return runErr
}

func isAlreadySettled(err error) bool {
	var duplicate *settlementdomain.DuplicateInvoiceError
	return errors.As(err, &duplicate) || errors.Is(err, settlementdomain.ErrNoBillableActivity)
}

func previousMonth(now time.Time) string {
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return firstOfMonth.AddDate(0, -1, 0).Format("2006-01")
}
