package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/matbakhapp/matbakh/internal/catalog/domain"
	stockdomain "github.com/matbakhapp/matbakh/internal/stock/domain"
	"github.com/matbakhapp/matbakh/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ResolverParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Resolver struct {
	db  *gorm.DB
	log *zap.Logger

	offers repository.Repository[catalogdomain.Offer]
	dishes repository.Repository[catalogdomain.CatalogDish]
}

func NewResolver(p ResolverParam) stockdomain.Resolver {
	return newResolver(p.DB, p.Log)
}

func newResolver(conn *gorm.DB, log *zap.Logger) *Resolver {
	return &Resolver{
		db:     conn,
		log:    log.Named("stock.resolver"),
		offers: repository.ProvideStore[catalogdomain.Offer](conn),
		dishes: repository.ProvideStore[catalogdomain.CatalogDish](conn),
	}
}

func (r *Resolver) WithTrx(tx *gorm.DB) stockdomain.Resolver {
	return newResolver(tx, r.log)
}

// stockSource is one of the two interchangeable stock strategies. The
// catalog strategy exists only for offers that predate per-offer stock and
// goes away once every offer carries its own column.
type stockSource interface {
	name() stockdomain.Source
	read(ctx context.Context, conn *gorm.DB) (int64, error)
	adjust(ctx context.Context, conn *gorm.DB, delta int64, conditional bool) (bool, error)
}

type offerStock struct {
	offerID snowflake.ID
}

func (s offerStock) name() stockdomain.Source { return stockdomain.SourceOffer }

func (s offerStock) read(ctx context.Context, conn *gorm.DB) (int64, error) {
	var stock int64
	err := conn.WithContext(ctx).Raw(
		`SELECT stock FROM offers WHERE id = ?`, s.offerID,
	).Scan(&stock).Error
	return stock, err
}

func (s offerStock) adjust(ctx context.Context, conn *gorm.DB, delta int64, conditional bool) (bool, error) {
	stmt := `UPDATE offers
		 SET stock = stock + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND stock IS NOT NULL`
	args := []any{delta, s.offerID}
	if conditional {
		stmt += ` AND stock >= ?`
		args = append(args, -delta)
	}
	result := conn.WithContext(ctx).Exec(stmt, args...)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

type catalogStock struct {
	dishID snowflake.ID
}

func (s catalogStock) name() stockdomain.Source { return stockdomain.SourceCatalog }

func (s catalogStock) read(ctx context.Context, conn *gorm.DB) (int64, error) {
	var stock int64
	err := conn.WithContext(ctx).Raw(
		`SELECT stock FROM catalog_dishes WHERE id = ?`, s.dishID,
	).Scan(&stock).Error
	return stock, err
}

func (s catalogStock) adjust(ctx context.Context, conn *gorm.DB, delta int64, conditional bool) (bool, error) {
	stmt := `UPDATE catalog_dishes
		 SET stock = stock + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`
	args := []any{delta, s.dishID}
	if conditional {
		stmt += ` AND stock >= ?`
		args = append(args, -delta)
	}
	result := conn.WithContext(ctx).Exec(stmt, args...)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// route picks the authoritative source for an offer id. Exactly one source
// applies: the offer row when it tracks its own stock, otherwise the shared
// catalog dish row.
func (r *Resolver) route(ctx context.Context, offerID snowflake.ID) (*catalogdomain.Offer, stockSource, error) {
	offer, err := r.offers.FindOne(ctx, &catalogdomain.Offer{ID: offerID})
	if err != nil {
		return nil, nil, err
	}
	if offer == nil {
		return nil, nil, stockdomain.ErrOfferNotFound
	}
	if offer.Stock != nil {
		return offer, offerStock{offerID: offer.ID}, nil
	}
	return offer, catalogStock{dishID: offer.CatalogDishID}, nil
}

func (r *Resolver) GetStock(ctx context.Context, offerID snowflake.ID) (stockdomain.Info, error) {
	offer, source, err := r.route(ctx, offerID)
	if err != nil {
		return stockdomain.Info{Source: stockdomain.SourceNone}, err
	}

	if source.name() == stockdomain.SourceCatalog {
		dish, err := r.dishes.FindOne(ctx, &catalogdomain.CatalogDish{ID: offer.CatalogDishID})
		if err != nil {
			return stockdomain.Info{Source: stockdomain.SourceNone}, err
		}
		if dish == nil {
			return stockdomain.Info{Source: stockdomain.SourceNone}, nil
		}
		return stockdomain.Info{
			Available: offer.Active && dish.Stock > 0,
			Stock:     dish.Stock,
			Source:    stockdomain.SourceCatalog,
		}, nil
	}

	return stockdomain.Info{
		Available: offer.Active && *offer.Stock > 0,
		Stock:     *offer.Stock,
		Source:    stockdomain.SourceOffer,
	}, nil
}

func (r *Resolver) Validate(ctx context.Context, offerID snowflake.ID, qty int64) error {
	if qty <= 0 {
		return stockdomain.ErrInvalidQuantity
	}

	offer, source, err := r.route(ctx, offerID)
	if err != nil {
		return err
	}
	if !offer.Active {
		return stockdomain.ErrOfferNotOrderable
	}

	available, err := source.read(ctx, r.db)
	if err != nil {
		return err
	}
	if available < qty {
		return &stockdomain.InsufficientStockError{
			OfferID:   offerID,
			Requested: qty,
			Available: available,
		}
	}
	return nil
}

func (r *Resolver) Decrement(ctx context.Context, offerID snowflake.ID, qty int64) (stockdomain.Source, error) {
	if qty <= 0 {
		return stockdomain.SourceNone, stockdomain.ErrInvalidQuantity
	}

	_, source, err := r.route(ctx, offerID)
	if err != nil {
		return stockdomain.SourceNone, err
	}

	applied, err := source.adjust(ctx, r.db, -qty, true)
	if err != nil {
		return stockdomain.SourceNone, err
	}
	if !applied {
		available, readErr := source.read(ctx, r.db)
		if readErr != nil {
			available = 0
		}
		return stockdomain.SourceNone, &stockdomain.InsufficientStockError{
			OfferID:   offerID,
			Requested: qty,
			Available: available,
		}
	}
	return source.name(), nil
}

func (r *Resolver) Increment(ctx context.Context, offerID snowflake.ID, qty int64) (stockdomain.Source, error) {
	if qty <= 0 {
		return stockdomain.SourceNone, stockdomain.ErrInvalidQuantity
	}

	_, source, err := r.route(ctx, offerID)
	if err != nil {
		return stockdomain.SourceNone, err
	}

	applied, err := source.adjust(ctx, r.db, qty, false)
	if err != nil {
		return stockdomain.SourceNone, err
	}
	if !applied {
		return stockdomain.SourceNone, stockdomain.ErrNoStockRecord
	}
	return source.name(), nil
}
